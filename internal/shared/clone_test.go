package shared

import "testing"

type copyNode struct {
	Name     string
	Weights  []float64
	Children map[string]*copyNode
	Next     *copyNode
}

func TestDeepCopy_Nil(t *testing.T) {
	if got := DeepCopy(nil); got != nil {
		t.Errorf("DeepCopy(nil) = %v, want nil", got)
	}
	var p *copyNode
	if got := DeepCopy(p).(*copyNode); got != nil {
		t.Errorf("DeepCopy of nil pointer = %v, want nil", got)
	}
}

func TestDeepCopy_Scalars(t *testing.T) {
	if got := DeepCopy(42).(int); got != 42 {
		t.Errorf("got %d, want 42", got)
	}
	if got := DeepCopy("replay").(string); got != "replay" {
		t.Errorf("got %q", got)
	}
}

func TestDeepCopy_Independence(t *testing.T) {
	orig := &copyNode{
		Name:    "root",
		Weights: []float64{1, 2, 3},
		Children: map[string]*copyNode{
			"left": {Name: "left", Weights: []float64{4}},
		},
	}

	clone := DeepCopy(orig).(*copyNode)
	if clone == orig {
		t.Fatal("copy aliases the original")
	}

	orig.Weights[0] = 99
	orig.Children["left"].Weights[0] = 99
	orig.Children["right"] = &copyNode{Name: "right"}

	if clone.Weights[0] != 1 {
		t.Errorf("slice mutation leaked: %v", clone.Weights)
	}
	if clone.Children["left"].Weights[0] != 4 {
		t.Errorf("nested pointer mutation leaked")
	}
	if len(clone.Children) != 1 {
		t.Errorf("map mutation leaked: %d children", len(clone.Children))
	}
}

func TestDeepCopy_PreservesCycles(t *testing.T) {
	a := &copyNode{Name: "a"}
	b := &copyNode{Name: "b", Next: a}
	a.Next = b

	clone := DeepCopy(a).(*copyNode)
	if clone.Next == nil || clone.Next.Next != clone {
		t.Fatal("cycle not preserved in copy")
	}
	if clone.Next == b {
		t.Error("copy aliases the original cycle")
	}
}

func TestDeepCopy_SharedSliceStaysShared(t *testing.T) {
	w := []float64{1, 2}
	orig := &copyNode{
		Children: map[string]*copyNode{
			"a": {Weights: w},
			"b": {Weights: w},
		},
	}

	clone := DeepCopy(orig).(*copyNode)
	clone.Children["a"].Weights[0] = 7
	if clone.Children["b"].Weights[0] != 7 {
		t.Error("aliased slices must stay aliased within the copy")
	}
	if w[0] != 1 {
		t.Error("copy must not write through to the original")
	}
}

func TestDeepCopy_NilContainers(t *testing.T) {
	clone := DeepCopy(&copyNode{Name: "bare"}).(*copyNode)
	if clone.Weights != nil || clone.Children != nil || clone.Next != nil {
		t.Errorf("nil containers must stay nil: %+v", clone)
	}
}
