package codec

import (
	"fmt"

	"google.golang.org/protobuf/types/known/structpb"

	"github.com/danielpatrickdp/adaptive-state/planner/internal/model"
	"github.com/danielpatrickdp/adaptive-state/planner/internal/planner"
	"github.com/danielpatrickdp/adaptive-state/planner/internal/rollout"
)

// Messages travel as structpb.Struct. Numbers are proto doubles, so -Inf
// negative EFE survives the binary wire format.

// #region encode
func floatList(xs []float64) []any {
	out := make([]any, len(xs))
	for i, x := range xs {
		out[i] = x
	}
	return out
}

func intList(xs []int) []any {
	out := make([]any, len(xs))
	for i, x := range xs {
		out[i] = x
	}
	return out
}

func matrixList(rows [][]float64) []any {
	out := make([]any, len(rows))
	for i, r := range rows {
		out[i] = floatList(r)
	}
	return out
}

func termsList(terms []*rollout.Terms) []any {
	out := make([]any, len(terms))
	for i, t := range terms {
		if t == nil {
			out[i] = nil
			continue
		}
		out[i] = map[string]any{
			"info_gain":         t.InfoGain,
			"predicted_kld":     t.PredictedKLD,
			"predicted_f":       t.PredictedF,
			"o_risk":            t.ObsRisk,
			"param_info_gain_a": t.ParamInfoGainA,
			"param_info_gain_b": t.ParamInfoGainB,
		}
	}
	return out
}

// EncodeBeliefs builds the request message for Infer.
func EncodeBeliefs(qs model.Beliefs) (*structpb.Struct, error) {
	return structpb.NewStruct(map[string]any{"beliefs": matrixList(qs)})
}

// EncodeDecision builds the response message for Infer.
func EncodeDecision(d *planner.Decision) (*structpb.Struct, error) {
	m := map[string]any{
		"posterior":    floatList(d.Posterior),
		"neg_efe":      floatList(d.NegEFE),
		"marginals":    matrixList(d.Marginals),
		"action":       intList(d.Action),
		"policy_index": d.PolicyIndex,
	}
	if d.PolicyProbs != nil {
		m["policy_probs"] = floatList(d.PolicyProbs)
	}
	if d.Terms != nil {
		m["terms"] = termsList(d.Terms)
	}
	return structpb.NewStruct(m)
}

// #endregion encode

// #region decode
func toFloats(v *structpb.Value) ([]float64, error) {
	l := v.GetListValue()
	if l == nil {
		return nil, fmt.Errorf("expected list, got %T", v.GetKind())
	}
	out := make([]float64, len(l.Values))
	for i, e := range l.Values {
		n, ok := e.GetKind().(*structpb.Value_NumberValue)
		if !ok {
			return nil, fmt.Errorf("element %d is not a number", i)
		}
		out[i] = n.NumberValue
	}
	return out, nil
}

func toInt(v *structpb.Value) (int, error) {
	n, ok := v.GetKind().(*structpb.Value_NumberValue)
	if !ok || n.NumberValue != float64(int(n.NumberValue)) {
		return 0, fmt.Errorf("expected integer, got %v", v.AsInterface())
	}
	return int(n.NumberValue), nil
}

func toInts(v *structpb.Value) ([]int, error) {
	fs, err := toFloats(v)
	if err != nil {
		return nil, err
	}
	out := make([]int, len(fs))
	for i, f := range fs {
		if f != float64(int(f)) {
			return nil, fmt.Errorf("element %d is not an integer: %v", i, f)
		}
		out[i] = int(f)
	}
	return out, nil
}

func toMatrix(v *structpb.Value) ([][]float64, error) {
	l := v.GetListValue()
	if l == nil {
		return nil, fmt.Errorf("expected list of lists, got %T", v.GetKind())
	}
	out := make([][]float64, len(l.Values))
	for i, row := range l.Values {
		r, err := toFloats(row)
		if err != nil {
			return nil, fmt.Errorf("row %d: %w", i, err)
		}
		out[i] = r
	}
	return out, nil
}

func toTerms(v *structpb.Value) ([]*rollout.Terms, error) {
	l := v.GetListValue()
	if l == nil {
		return nil, fmt.Errorf("expected list, got %T", v.GetKind())
	}
	out := make([]*rollout.Terms, len(l.Values))
	for i, e := range l.Values {
		if _, null := e.GetKind().(*structpb.Value_NullValue); null {
			continue
		}
		st := e.GetStructValue()
		if st == nil {
			return nil, fmt.Errorf("element %d is neither null nor a struct", i)
		}
		t := &rollout.Terms{}
		for key, dst := range map[string]*float64{
			"info_gain":         &t.InfoGain,
			"predicted_kld":     &t.PredictedKLD,
			"predicted_f":       &t.PredictedF,
			"o_risk":            &t.ObsRisk,
			"param_info_gain_a": &t.ParamInfoGainA,
			"param_info_gain_b": &t.ParamInfoGainB,
		} {
			n, ok := st.GetFields()[key].GetKind().(*structpb.Value_NumberValue)
			if !ok {
				return nil, fmt.Errorf("element %d: %s is not a number", i, key)
			}
			*dst = n.NumberValue
		}
		out[i] = t
	}
	return out, nil
}

func decodeField[T any](s *structpb.Struct, name string, conv func(*structpb.Value) (T, error)) (T, error) {
	var zero T
	v, ok := s.GetFields()[name]
	if !ok {
		return zero, fmt.Errorf("missing field %q", name)
	}
	out, err := conv(v)
	if err != nil {
		return zero, fmt.Errorf("%s: %w", name, err)
	}
	return out, nil
}

// DecodeBeliefs reads the beliefs field of a request message.
func DecodeBeliefs(s *structpb.Struct) (model.Beliefs, error) {
	qs, err := decodeField(s, "beliefs", toMatrix)
	if err != nil {
		return nil, err
	}
	return model.Beliefs(qs), nil
}

// DecodeAction reads the action field of a request message.
func DecodeAction(s *structpb.Struct) ([]int, error) {
	return decodeField(s, "action", toInts)
}

// DecodeDecision rebuilds a Decision from an Infer response.
func DecodeDecision(s *structpb.Struct) (*planner.Decision, error) {
	d := &planner.Decision{}
	var err error
	if d.Posterior, err = decodeField(s, "posterior", toFloats); err != nil {
		return nil, fmt.Errorf("decode decision: %w", err)
	}
	if d.NegEFE, err = decodeField(s, "neg_efe", toFloats); err != nil {
		return nil, fmt.Errorf("decode decision: %w", err)
	}
	if d.Marginals, err = decodeField(s, "marginals", toMatrix); err != nil {
		return nil, fmt.Errorf("decode decision: %w", err)
	}
	if d.Action, err = decodeField(s, "action", toInts); err != nil {
		return nil, fmt.Errorf("decode decision: %w", err)
	}
	idx, err := decodeField(s, "policy_index", toInt)
	if err != nil {
		return nil, fmt.Errorf("decode decision: %w", err)
	}
	d.PolicyIndex = idx
	if _, ok := s.GetFields()["policy_probs"]; ok {
		if d.PolicyProbs, err = decodeField(s, "policy_probs", toFloats); err != nil {
			return nil, fmt.Errorf("decode decision: %w", err)
		}
	}
	if _, ok := s.GetFields()["terms"]; ok {
		if d.Terms, err = decodeField(s, "terms", toTerms); err != nil {
			return nil, fmt.Errorf("decode decision: %w", err)
		}
	}
	return d, nil
}

// #endregion decode
