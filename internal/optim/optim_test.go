package optim_test

import (
	"math"
	"testing"

	"github.com/chorale-ml/chorale/internal/backend/cpu"
	"github.com/chorale-ml/chorale/internal/nn"
	"github.com/chorale-ml/chorale/internal/optim"
	"github.com/chorale-ml/chorale/internal/tensor"
)

// Helper to check float equality with tolerance.
func floatEqual(a, b, eps float32) bool {
	diff := a - b
	if diff < 0 {
		diff = -diff
	}
	return diff < eps
}

func newParam(t *testing.T, name string, values []float32) *nn.Parameter[*cpu.CPUBackend] {
	t.Helper()
	x, err := tensor.FromSlice(values, tensor.Shape{len(values)}, cpu.New())
	if err != nil {
		t.Fatalf("FromSlice: %v", err)
	}
	return nn.NewParameter(name, x)
}

func setGrad(t *testing.T, param *nn.Parameter[*cpu.CPUBackend], values []float32) {
	t.Helper()
	grad, err := tensor.NewRaw(tensor.Shape{len(values)}, tensor.Float32, tensor.CPU)
	if err != nil {
		t.Fatalf("NewRaw: %v", err)
	}
	copy(grad.AsFloat32(), values)
	if err := param.AccumulateGrad(grad, 1.0); err != nil {
		t.Fatalf("AccumulateGrad: %v", err)
	}
}

// TestSGD_SimpleUpdate tests SGD without momentum.
func TestSGD_SimpleUpdate(t *testing.T) {
	param := newParam(t, "x", []float32{2.0})

	optimizer := optim.NewSGD([]*nn.Parameter[*cpu.CPUBackend]{param}, optim.SGDConfig{LR: 0.1})

	setGrad(t, param, []float32{1.0})
	optimizer.Step()

	// x_new = x_old - lr * grad = 2.0 - 0.1 * 1.0 = 1.9
	if got := param.Tensor().Data()[0]; !floatEqual(got, 1.9, 1e-6) {
		t.Errorf("SGD update: got %f, want 1.9", got)
	}
}

// TestSGD_WithMomentum tests SGD with momentum over two steps.
func TestSGD_WithMomentum(t *testing.T) {
	param := newParam(t, "x", []float32{1.0})

	optimizer := optim.NewSGD([]*nn.Parameter[*cpu.CPUBackend]{param},
		optim.SGDConfig{LR: 0.1, Momentum: 0.9})

	// First step: v_1 = 1.0, x_1 = 1.0 - 0.1 = 0.9
	setGrad(t, param, []float32{1.0})
	optimizer.Step()
	optimizer.ZeroGrad()
	if got := param.Tensor().Data()[0]; !floatEqual(got, 0.9, 1e-6) {
		t.Errorf("SGD momentum step 1: got %f, want 0.9", got)
	}

	// Second step: v_2 = 0.9 + 1.0 = 1.9, x_2 = 0.9 - 0.19 = 0.71
	setGrad(t, param, []float32{1.0})
	optimizer.Step()
	if got := param.Tensor().Data()[0]; !floatEqual(got, 0.71, 1e-5) {
		t.Errorf("SGD momentum step 2: got %f, want 0.71", got)
	}
}

// TestZeroGrad tests that ZeroGrad clears accumulated gradients.
func TestZeroGrad(t *testing.T) {
	param := newParam(t, "x", []float32{1.0})
	setGrad(t, param, []float32{5.0})

	if param.Grad() == nil {
		t.Fatal("Grad should not be nil after accumulation")
	}

	optimizer := optim.NewSGD([]*nn.Parameter[*cpu.CPUBackend]{param}, optim.SGDConfig{LR: 0.1})
	optimizer.ZeroGrad()

	if param.Grad() != nil {
		t.Error("Grad should be nil after ZeroGrad")
	}
}

// TestAdam_SimpleUpdate tests the first Adam step with bias correction.
func TestAdam_SimpleUpdate(t *testing.T) {
	param := newParam(t, "x", []float32{1.0})

	optimizer := optim.NewAdam([]*nn.Parameter[*cpu.CPUBackend]{param},
		optim.AdamConfig{LR: 0.001, Betas: [2]float32{0.9, 0.999}, Eps: 1e-8})

	setGrad(t, param, []float32{1.0})
	optimizer.Step()

	// m_hat = v_hat = 1.0 after bias correction on step 1,
	// x_new = 1.0 - 0.001 * 1.0 / (1.0 + 1e-8) ≈ 0.999
	if got := param.Tensor().Data()[0]; !floatEqual(got, 0.999, 1e-5) {
		t.Errorf("Adam first step: got %f, want 0.999", got)
	}
}

// TestAdam_Timestep verifies timestep bookkeeping across steps.
func TestAdam_Timestep(t *testing.T) {
	param := newParam(t, "x", []float32{1.0})

	optimizer := optim.NewAdam([]*nn.Parameter[*cpu.CPUBackend]{param}, optim.AdamConfig{LR: 0.01})

	if optimizer.GetTimestep() != 0 {
		t.Errorf("initial timestep: got %d, want 0", optimizer.GetTimestep())
	}

	for i := int64(1); i <= 3; i++ {
		setGrad(t, param, []float32{1.0})
		optimizer.Step()
		optimizer.ZeroGrad()

		if optimizer.GetTimestep() != i {
			t.Errorf("after step %d, timestep: got %d, want %d", i, optimizer.GetTimestep(), i)
		}
	}

	if final := param.Tensor().Data()[0]; final >= 1.0 {
		t.Errorf("after 3 Adam steps with positive gradient, parameter should decrease: got %f", final)
	}
}

// TestAdam_WeightDecay checks the decoupled decay term.
func TestAdam_WeightDecay(t *testing.T) {
	param := newParam(t, "x", []float32{2.0})

	optimizer := optim.NewAdam([]*nn.Parameter[*cpu.CPUBackend]{param},
		optim.AdamConfig{LR: 0.1, WeightDecay: 0.5})

	setGrad(t, param, []float32{1.0})
	optimizer.Step()

	// Decay first: 2.0 * (1 - 0.1*0.5) = 1.9, then the Adam update ≈ -0.1.
	if got := param.Tensor().Data()[0]; !floatEqual(got, 1.8, 1e-4) {
		t.Errorf("AdamW step: got %f, want ~1.8", got)
	}
}

// TestAdam_StateDictRoundTrip restores moments and timestep into a fresh optimizer.
func TestAdam_StateDictRoundTrip(t *testing.T) {
	param := newParam(t, "w", []float32{3.0, -1.0})
	optimizer := optim.NewAdam([]*nn.Parameter[*cpu.CPUBackend]{param}, optim.AdamConfig{LR: 0.1})

	for i := 0; i < 5; i++ {
		setGrad(t, param, []float32{0.5, -0.25})
		optimizer.Step()
		optimizer.ZeroGrad()
	}
	state := optimizer.StateDict()

	// A second optimizer over a copy of the parameter, resumed from state,
	// must produce the same next update.
	paramCopy := newParam(t, "w", param.Tensor().Data())
	resumed := optim.NewAdam([]*nn.Parameter[*cpu.CPUBackend]{paramCopy}, optim.AdamConfig{LR: 0.1})
	if err := resumed.LoadStateDict(state); err != nil {
		t.Fatalf("LoadStateDict: %v", err)
	}
	if resumed.GetTimestep() != optimizer.GetTimestep() {
		t.Fatalf("timestep: got %d, want %d", resumed.GetTimestep(), optimizer.GetTimestep())
	}

	setGrad(t, param, []float32{0.5, -0.25})
	optimizer.Step()
	setGrad(t, paramCopy, []float32{0.5, -0.25})
	resumed.Step()

	for i := range param.Tensor().Data() {
		a, b := param.Tensor().Data()[i], paramCopy.Tensor().Data()[i]
		if !floatEqual(a, b, 1e-7) {
			t.Errorf("post-resume update diverged at %d: %f vs %f", i, a, b)
		}
	}
}

// TestAdam_LoadStateDict_UnknownParameter rejects stale state entries.
func TestAdam_LoadStateDict_UnknownParameter(t *testing.T) {
	param := newParam(t, "w", []float32{1.0})
	optimizer := optim.NewAdam([]*nn.Parameter[*cpu.CPUBackend]{param}, optim.AdamConfig{})

	bogus, _ := tensor.NewRaw(tensor.Shape{1}, tensor.Float32, tensor.CPU)
	if err := optimizer.LoadStateDict(map[string]*tensor.RawTensor{"m.gone": bogus}); err == nil {
		t.Error("expected error for unknown parameter in state dict")
	}
}

// TestConvergence_SimpleQuadratic verifies both optimizers minimize f(x) = x².
func TestConvergence_SimpleQuadratic(t *testing.T) {
	run := func(t *testing.T, newOpt func(p *nn.Parameter[*cpu.CPUBackend]) optim.Optimizer) {
		param := newParam(t, "x", []float32{3.0})
		optimizer := newOpt(param)

		for i := 0; i < 100; i++ {
			// df/dx = 2x
			setGrad(t, param, []float32{2.0 * param.Tensor().Data()[0]})
			optimizer.Step()
			optimizer.ZeroGrad()
		}

		if final := param.Tensor().Data()[0]; math.Abs(float64(final)) > 0.1 {
			t.Errorf("convergence: x = %f, expected close to 0", final)
		}
	}

	t.Run("SGD", func(t *testing.T) {
		run(t, func(p *nn.Parameter[*cpu.CPUBackend]) optim.Optimizer {
			return optim.NewSGD([]*nn.Parameter[*cpu.CPUBackend]{p}, optim.SGDConfig{LR: 0.1, Momentum: 0.9})
		})
	})
	t.Run("Adam", func(t *testing.T) {
		run(t, func(p *nn.Parameter[*cpu.CPUBackend]) optim.Optimizer {
			return optim.NewAdam([]*nn.Parameter[*cpu.CPUBackend]{p}, optim.AdamConfig{LR: 0.1})
		})
	})
}
