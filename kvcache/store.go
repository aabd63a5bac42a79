package kvcache

// PagedStore holds the flat key and value buffers for the paged KV cache,
// shaped [L, N, B, Hkv, headDim] in row-major order. Writes are made by
// the step engine; reads are made by the attention kernel.
type PagedStore struct {
	numLayers   int
	numBlocks   int
	blockSize   int
	numKVHeads  int
	headDim     int

	key   []float32
	value []float32
}

// NewPagedStore allocates zero-initialized key/value buffers sized
// L*N*B*Hkv*headDim each.
func NewPagedStore(numLayers, numBlocks, blockSize, numKVHeads, headDim int) *PagedStore {
	size := numLayers * numBlocks * blockSize * numKVHeads * headDim
	return &PagedStore{
		numLayers:  numLayers,
		numBlocks:  numBlocks,
		blockSize:  blockSize,
		numKVHeads: numKVHeads,
		headDim:    headDim,
		key:        make([]float32, size),
		value:      make([]float32, size),
	}
}

// Reset zeroes both buffers, used between runs before reuse.
func (s *PagedStore) Reset() {
	for i := range s.key {
		s.key[i] = 0
	}
	for i := range s.value {
		s.value[i] = 0
	}
}

func (s *PagedStore) cellWidth() int { return s.numKVHeads * s.headDim }

// elementOffset computes the flat index of the first float of the cell
// at (layer, physicalBlock, blockOffset), per the store's row-major
// [L, N, B, Hkv, headDim] layout.
func (s *PagedStore) elementOffset(layer, physicalBlock, blockOffset int) int {
	return ((layer*s.numBlocks+physicalBlock)*s.blockSize+blockOffset)*s.cellWidth()
}

// WriteKV writes one position's key and value vectors (each Hkv*headDim
// long) into the block addressed by physicalBlock at blockOffset within
// layer. Per the single-owner invariant, a given (layer, physicalBlock,
// blockOffset) cell must be written at most once over its lifetime.
func (s *PagedStore) WriteKV(layer, physicalBlock, blockOffset int, k, v []float32) {
	off := s.elementOffset(layer, physicalBlock, blockOffset)
	copy(s.key[off:off+s.cellWidth()], k)
	copy(s.value[off:off+s.cellWidth()], v)
}

// ReadKV returns views (not copies) of the key and value vectors at the
// given cell.
func (s *PagedStore) ReadKV(layer, physicalBlock, blockOffset int) (k, v []float32) {
	off := s.elementOffset(layer, physicalBlock, blockOffset)
	w := s.cellWidth()
	return s.key[off : off+w], s.value[off : off+w]
}

// Locate translates a logical position t for the given block table into
// its (physicalBlock, blockOffset) coordinates.
func (s *PagedStore) Locate(t int, blockTable []int) (physicalBlock, blockOffset int) {
	logicalBlock := t / s.blockSize
	return blockTable[logicalBlock], t % s.blockSize
}

// ContiguousStore is the degraded, non-paged comparison cache: one
// contiguous buffer per layer sized S_max*Hkv*headDim, used when
// paging is disabled.
type ContiguousStore struct {
	numLayers  int
	maxSeqLen  int
	numKVHeads int
	headDim    int

	key   []float32
	value []float32
}

func NewContiguousStore(numLayers, maxSeqLen, numKVHeads, headDim int) *ContiguousStore {
	size := numLayers * maxSeqLen * numKVHeads * headDim
	return &ContiguousStore{
		numLayers:  numLayers,
		maxSeqLen:  maxSeqLen,
		numKVHeads: numKVHeads,
		headDim:    headDim,
		key:        make([]float32, size),
		value:      make([]float32, size),
	}
}

func (s *ContiguousStore) Reset() {
	for i := range s.key {
		s.key[i] = 0
	}
	for i := range s.value {
		s.value[i] = 0
	}
}

func (s *ContiguousStore) cellWidth() int { return s.numKVHeads * s.headDim }

func (s *ContiguousStore) elementOffset(layer, pos int) int {
	return (layer*s.maxSeqLen + pos) * s.cellWidth()
}

func (s *ContiguousStore) WriteKV(layer, pos int, k, v []float32) {
	off := s.elementOffset(layer, pos)
	copy(s.key[off:off+s.cellWidth()], k)
	copy(s.value[off:off+s.cellWidth()], v)
}

func (s *ContiguousStore) ReadKV(layer, pos int) (k, v []float32) {
	off := s.elementOffset(layer, pos)
	w := s.cellWidth()
	return s.key[off : off+w], s.value[off : off+w]
}

// NumBytes reports the memory footprint of the buffers, used by the
// paged-vs-contiguous memory comparison report.
func (s *ContiguousStore) NumBytes() int64 {
	return int64(len(s.key)+len(s.value)) * 4
}

// NumBytes reports the memory footprint of the paged store's buffers.
func (s *PagedStore) NumBytes() int64 {
	return int64(len(s.key)+len(s.value)) * 4
}
