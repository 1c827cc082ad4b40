package utils

// FileBlockHelper splits a media file into fixed-size blocks
type FileBlockHelper struct {
	BlockSize int
}

// NewFileBlockHelper creates a new FileBlockHelper
func NewFileBlockHelper(blockSize int) *FileBlockHelper {
	return &FileBlockHelper{
		BlockSize: blockSize,
	}
}

// GetBlockIDForOffset returns block index
func (helper *FileBlockHelper) GetBlockIDForOffset(offset int64) int64 {
	return offset / int64(helper.BlockSize)
}

// GetBlockStartOffsetForBlockID returns block start offset
func (helper *FileBlockHelper) GetBlockStartOffsetForBlockID(blockID int64) int64 {
	return blockID * int64(helper.BlockSize)
}

// GetBlockRangeForOffset returns [start, end) of the block containing offset
func (helper *FileBlockHelper) GetBlockRangeForOffset(offset int64) (int64, int64) {
	start := helper.GetBlockStartOffsetForBlockID(helper.GetBlockIDForOffset(offset))
	return start, start + int64(helper.BlockSize)
}

// GetFillRange returns the range to fetch for a read at offset that misses the cache.
// gapStart is the end of the cached span preceding offset (or 0), gapEnd is the start
// of the next cached span (or -1 when unknown/unbounded) and limit is the end of the
// requested data (or -1). The result never crosses a block boundary so that readers
// landing anywhere in the same gap compute the same range.
func (helper *FileBlockHelper) GetFillRange(offset int64, gapStart int64, gapEnd int64, limit int64) (int64, int64) {
	blockStart, blockEnd := helper.GetBlockRangeForOffset(offset)

	start := blockStart
	if gapStart > start {
		start = gapStart
	}

	end := blockEnd
	if gapEnd >= 0 && gapEnd < end {
		end = gapEnd
	}
	if limit >= 0 && limit < end {
		end = limit
	}

	if end < start {
		end = start
	}
	return start, end
}
