package embedder

import (
	"context"
	"hash/fnv"
	"math"
)

// deterministicEmbedder hashes byte 3-grams into a fixed-size vector. It
// requires no external model and is deterministic for identical inputs
// under a fixed dimension/seed, making it suitable both as the default
// local embedder and for tests that must not depend on a remote service.
type deterministicEmbedder struct {
	dim  int
	seed uint64
}

// NewDeterministic constructs a deterministic embedder of the given
// dimension. A dim <= 0 defaults to 256.
func NewDeterministic(dim int, seed uint64) Embedder {
	if dim <= 0 {
		dim = 256
	}
	return &deterministicEmbedder{dim: dim, seed: seed}
}

func (d *deterministicEmbedder) Dimension() int { return d.dim }

func (d *deterministicEmbedder) Embed(ctx context.Context, texts []string, normalize, showProgress bool) ([][]float32, error) {
	if err := validateTexts(texts); err != nil {
		return nil, err
	}
	out := make([][]float32, len(texts))
	for i, t := range texts {
		out[i] = d.embedOne(t, normalize)
	}
	return out, nil
}

func (d *deterministicEmbedder) EmbedSingle(ctx context.Context, s string, normalize bool) ([]float32, error) {
	vecs, err := d.Embed(ctx, []string{s}, normalize, false)
	if err != nil {
		return nil, err
	}
	return vecs[0], nil
}

func (d *deterministicEmbedder) embedOne(s string, normalize bool) []float32 {
	v := make([]float32, d.dim)
	b := []byte(s)
	if len(b) < 3 {
		d.accumulate(b, v)
	} else {
		for i := 0; i <= len(b)-3; i++ {
			d.accumulate(b[i:i+3], v)
		}
	}
	if normalize {
		l2Normalize(v)
	}
	return v
}

func (d *deterministicEmbedder) accumulate(gram []byte, v []float32) {
	h := fnv.New64a()
	if d.seed != 0 {
		var tmp [8]byte
		for i := 0; i < 8; i++ {
			tmp[i] = byte(d.seed >> (8 * i))
		}
		_, _ = h.Write(tmp[:])
	}
	_, _ = h.Write(gram)
	hv := h.Sum64()
	idx := int(hv % uint64(len(v)))
	weight := float32(int32(hv>>32)) / float32(1<<31)
	v[idx] += weight
}

// l2Normalize scales v in place to unit L2 norm; a zero vector is left
// unchanged.
func l2Normalize(v []float32) {
	var sumSq float64
	for _, x := range v {
		sumSq += float64(x) * float64(x)
	}
	if sumSq == 0 {
		return
	}
	inv := float32(1.0 / math.Sqrt(sumSq))
	for i := range v {
		v[i] *= inv
	}
}
