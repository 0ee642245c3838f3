package simcore

import (
	"fmt"

	"github.com/neupims-sim/neupims-sim/addr"
	"github.com/neupims-sim/neupims-sim/alloc"
	"github.com/neupims-sim/neupims-sim/config"
	"github.com/neupims-sim/neupims-sim/opgraph"
	"github.com/neupims-sim/neupims-sim/reqs"
	"github.com/neupims-sim/neupims-sim/tile"
)

// ModelProgram builds the per-iteration Operations (QKV projection,
// projection+FFN, and multi-head attention) the Scheduler's stage table
// drives each sub-batch through, grounded on spec.md §4.6's operation
// catalogue. Per the Non-goals in spec.md §1 ("functional correctness of
// tensor arithmetic ... values are never computed; only addresses and
// cycle counts"), every op here only needs correct shapes/addresses, never
// real numeric weights.
type ModelProgram struct {
	cfg     *config.ModelConfig
	mapping *addr.Mapping
	ctx     *opgraph.Context
	weights *alloc.WeightArena

	wqkv, wproj, wfc1, wfc2   *opgraph.Tensor
	lnAttnGamma, lnAttnBeta   *opgraph.Tensor
	lnFFNGamma, lnFFNBeta     *opgraph.Tensor

	precision int
}

// NewModelProgram allocates the model's static weight tensors once,
// grow-only, from weights (spec.md §4.10's weight arena).
func NewModelProgram(cfg *config.ModelConfig, hw *config.HardwareConfig, mapping *addr.Mapping, ctx *opgraph.Context, weights *alloc.WeightArena) *ModelProgram {
	p := &ModelProgram{cfg: cfg, mapping: mapping, ctx: ctx, weights: weights, precision: hw.Precision}

	nEmbd, nHead := cfg.NEmbd, cfg.NHead
	dK := cfg.DK()
	_ = nHead
	_ = dK

	p.wqkv = p.newWeight(nEmbd, 3*nEmbd)
	p.wproj = p.newWeight(nEmbd, nEmbd)
	p.wfc1 = p.newWeight(nEmbd, 4*nEmbd)
	p.wfc2 = p.newWeight(4*nEmbd, nEmbd)
	p.lnAttnGamma = p.newWeight(1, nEmbd)
	p.lnAttnBeta = p.newWeight(1, nEmbd)
	p.lnFFNGamma = p.newWeight(1, nEmbd)
	p.lnFFNBeta = p.newWeight(1, nEmbd)
	return p
}

func (p *ModelProgram) newWeight(rows, cols int) *opgraph.Tensor {
	size := uint64(rows*cols*p.precision)
	base := p.weights.Allocate(size)
	return opgraph.NewDense2D(base, rows, cols, p.precision, p.mapping, false)
}

// perRequestOp names one batch member's per-iteration working tensors,
// allocated from the iteration's flushable activation arena and freed by
// the caller flushing that arena at iteration end.
type perRequestOp struct {
	req        *reqs.InferRequest
	activation *opgraph.Tensor // 1 x n_embd, the current token's hidden state
	qkv        *opgraph.Tensor // 1 x 3*n_embd
	attnOut    *opgraph.Tensor // 1 x n_embd
	ffnHidden  *opgraph.Tensor // 1 x 4*n_embd
}

func (p *ModelProgram) allocRow(arena *alloc.ActivationArena, cols int) (*opgraph.Tensor, error) {
	size := uint64(cols * p.precision)
	base, ok := arena.Allocate(size)
	if !ok {
		return nil, fmt.Errorf("simcore: activation arena exhausted allocating %d bytes", size)
	}
	return opgraph.NewDense2D(base, 1, cols, p.precision, p.mapping, true), nil
}

// BuildQKVGen lowers one QKV-projection MatMul Operation per request in
// batch (spec.md §4.5's stage-A/B SA work).
func (p *ModelProgram) BuildQKVGen(arena *alloc.ActivationArena, batch []*reqs.InferRequest) ([]*opgraph.Operation, error) {
	var ops []*opgraph.Operation
	nEmbd := p.cfg.NEmbd
	for _, r := range batch {
		act, err := p.allocRow(arena, nEmbd)
		if err != nil {
			return nil, err
		}
		qkv, err := p.allocRow(arena, 3*nEmbd)
		if err != nil {
			return nil, err
		}
		act.Produced = true
		mm := &opgraph.MatMul{Activation: act, Weight: p.wqkv, Output: qkv, M: 1, K: int64(nEmbd), N: int64(3 * nEmbd)}
		op := opgraph.NewOperation(p.ctx, fmt.Sprintf("QKVGen[%d]", r.ID), tile.SA, mm, []*opgraph.Tensor{act, p.wqkv}, []*opgraph.Tensor{qkv})
		ops = append(ops, op)
	}
	return ops, nil
}

// BuildProjFFN lowers attention-output projection, layernorm, and the
// two-layer FFN (with Gelu) for each request in batch (spec.md §4.5's
// stage-C..F SA work). No residual-add operation is emitted.
func (p *ModelProgram) BuildProjFFN(arena *alloc.ActivationArena, batch []*reqs.InferRequest, attnOut map[int]*opgraph.Tensor) ([]*opgraph.Operation, error) {
	var ops []*opgraph.Operation
	nEmbd := p.cfg.NEmbd
	for _, r := range batch {
		in := attnOut[r.ID]
		if in == nil {
			continue
		}
		projOut, err := p.allocRow(arena, nEmbd)
		if err != nil {
			return nil, err
		}
		proj := &opgraph.MatMul{Activation: in, Weight: p.wproj, Output: projOut, M: 1, K: int64(nEmbd), N: int64(nEmbd)}
		ops = append(ops, opgraph.NewOperation(p.ctx, fmt.Sprintf("Proj[%d]", r.ID), tile.SA, proj, []*opgraph.Tensor{in, p.wproj}, []*opgraph.Tensor{projOut}))

		normed, err := p.allocRow(arena, nEmbd)
		if err != nil {
			return nil, err
		}
		ln := &opgraph.VectorOp{Kind: opgraph.VecLayerNorm, Input: projOut, Gamma: p.lnAttnGamma, Beta: p.lnAttnBeta, Output: normed, Rows: 1, Cols: int64(nEmbd)}
		ops = append(ops, opgraph.NewOperation(p.ctx, fmt.Sprintf("LayerNormAttn[%d]", r.ID), tile.SA, ln, []*opgraph.Tensor{projOut}, []*opgraph.Tensor{normed}))

		hidden, err := p.allocRow(arena, 4*nEmbd)
		if err != nil {
			return nil, err
		}
		fc1 := &opgraph.MatMul{Activation: normed, Weight: p.wfc1, Output: hidden, M: 1, K: int64(nEmbd), N: int64(4 * nEmbd)}
		ops = append(ops, opgraph.NewOperation(p.ctx, fmt.Sprintf("FC1[%d]", r.ID), tile.SA, fc1, []*opgraph.Tensor{normed, p.wfc1}, []*opgraph.Tensor{hidden}))

		activated, err := p.allocRow(arena, 4*nEmbd)
		if err != nil {
			return nil, err
		}
		gelu := &opgraph.VectorOp{Kind: opgraph.VecGelu, Input: hidden, Output: activated, Rows: 1, Cols: int64(4 * nEmbd)}
		ops = append(ops, opgraph.NewOperation(p.ctx, fmt.Sprintf("Gelu[%d]", r.ID), tile.SA, gelu, []*opgraph.Tensor{hidden}, []*opgraph.Tensor{activated}))

		ffnOut, err := p.allocRow(arena, nEmbd)
		if err != nil {
			return nil, err
		}
		fc2 := &opgraph.MatMul{Activation: activated, Weight: p.wfc2, Output: ffnOut, M: 1, K: int64(4 * nEmbd), N: int64(nEmbd)}
		ops = append(ops, opgraph.NewOperation(p.ctx, fmt.Sprintf("FC2[%d]", r.ID), tile.SA, fc2, []*opgraph.Tensor{activated, p.wfc2}, []*opgraph.Tensor{ffnOut}))
	}
	return ops, nil
}

// BuildMHANPU lowers NPU-only fused multi-head attention for each request
// in batch (spec.md §4.6.4, SPEC_FULL.md §12.3's kernel-fusion path).
func (p *ModelProgram) BuildMHANPU(arena *alloc.ActivationArena, batch []*reqs.InferRequest, kCache, vCache map[int]*opgraph.Tensor, kernelFusion bool) ([]*opgraph.Operation, map[int]*opgraph.Tensor, error) {
	out := make(map[int]*opgraph.Tensor, len(batch))
	var ops []*opgraph.Operation
	dK := p.cfg.DK()
	for _, r := range batch {
		k := kCache[r.ID]
		v := vCache[r.ID]
		if k == nil || v == nil {
			continue
		}
		q, err := p.allocRow(arena, dK)
		if err != nil {
			return nil, nil, err
		}
		q.Produced = true
		logits, err := p.allocRow(arena, k.NumTokens+1)
		if err != nil {
			return nil, nil, err
		}
		probs, err := p.allocRow(arena, k.NumTokens+1)
		if err != nil {
			return nil, nil, err
		}
		weighted, err := p.allocRow(arena, dK)
		if err != nil {
			return nil, nil, err
		}
		fused := &opgraph.FusedMHAOp{
			QKVProj:      &opgraph.MatMul{Activation: q, Weight: p.wqkv, Output: q, M: 1, K: int64(dK), N: int64(dK)},
			Logits:       &opgraph.MatMul{Activation: q, Weight: k, Output: logits, M: 1, K: int64(dK), N: int64(k.NumTokens + 1)},
			Softmax:      &opgraph.VectorOp{Kind: opgraph.VecSoftmax, Input: logits, Output: probs, Rows: 1, Cols: int64(k.NumTokens + 1)},
			Weighted:     &opgraph.MatMul{Activation: probs, Weight: v, Output: weighted, M: 1, K: int64(k.NumTokens + 1), N: int64(dK)},
			KernelFusion: kernelFusion,
		}
		ops = append(ops, opgraph.NewOperation(p.ctx, fmt.Sprintf("FusedMHA[%d]", r.ID), tile.SA, fused, []*opgraph.Tensor{q, k, v}, []*opgraph.Tensor{weighted}))
		out[r.ID] = weighted
	}
	return ops, out, nil
}

// BuildMHAPIM lowers PIM-resident GEMV-based attention for each request in
// batch (spec.md §4.6.3), dispatching Newton's COMP+READRES sequence or
// NeuPIMS's fused COMPS_READRES packet per the run's DRAMType.
func (p *ModelProgram) BuildMHAPIM(arena *alloc.ActivationArena, batch []*reqs.InferRequest, kCache map[int]*opgraph.Tensor, headsPerTile int, mode opgraph.PIMMode) ([]*opgraph.Operation, map[int]*opgraph.Tensor, error) {
	out := make(map[int]*opgraph.Tensor, len(batch))
	var ops []*opgraph.Operation
	nHead := p.cfg.NHead
	for _, r := range batch {
		k := kCache[r.ID]
		if k == nil {
			continue
		}
		numChunks := (nHead + headsPerTile - 1) / headsPerTile
		partials, err := p.allocRow(arena, numChunks)
		if err != nil {
			return nil, nil, err
		}
		outT, err := p.allocRow(arena, 1)
		if err != nil {
			return nil, nil, err
		}
		gemv := &opgraph.PIMGEMVOp{
			Kind: opgraph.KindPIMGEMVAdd, Mode: mode,
			Mapping: p.mapping, Channel: r.Channel,
			QueryRow: k.NumTokens, NumHeads: nHead, CompsPerHead: k.NumTokens + 1,
			PartialSums: partials, Output: outT,
		}
		ops = append(ops, opgraph.NewOperation(p.ctx, fmt.Sprintf("PIMGEMV[%d]", r.ID), tile.PIM, gemv, []*opgraph.Tensor{k}, []*opgraph.Tensor{outT}))
		out[r.ID] = outT
	}
	return ops, out, nil
}
