package domain

// DataShards is the number of data segments every object is split into.
const DataShards = 3

// Shape describes an object as Height rows of Width pixels with Channels bytes
// each. Channels is 0 for single-plane (2-D) objects.
type Shape struct {
	Height   int `json:"height" dynamodbav:"height"`
	Width    int `json:"width" dynamodbav:"width"`
	Channels int `json:"channels,omitempty" dynamodbav:"channels"`
}

// RowSize returns the number of bytes in one row.
func (s Shape) RowSize() int {
	c := s.Channels
	if c == 0 {
		c = 1
	}
	return s.Width * c
}

// Len returns the number of bytes an object of this shape holds.
func (s Shape) Len() int {
	return s.Height * s.RowSize()
}

// IsZero reports whether s is the zero Shape.
func (s Shape) IsZero() bool {
	return s == Shape{}
}

// Valid reports whether s describes a non-empty object.
func (s Shape) Valid() bool {
	return s.Height >= 1 && s.Width >= 1 && s.Channels >= 0
}

// Object is an immutable rectangular byte array.
type Object struct {
	Shape Shape
	Data  []byte
}

// Layout records how an object was segmented so that reconstruction can trim
// the padding back out. It is returned by Split and passed to Reconstruct.
type Layout struct {
	Original      Shape `json:"original" dynamodbav:"original"`
	SegmentHeight int   `json:"segment_height" dynamodbav:"segment_height"`
}

// IsZero reports whether no shape has been recorded.
func (l Layout) IsZero() bool {
	return l.Original.IsZero() || l.SegmentHeight == 0
}

// SegmentShape is the shape of each shard and parity block.
func (l Layout) SegmentShape() Shape {
	return Shape{Height: l.SegmentHeight, Width: l.Original.Width, Channels: l.Original.Channels}
}

// SegmentLen is the byte length of each shard and parity block.
func (l Layout) SegmentLen() int {
	return l.SegmentShape().Len()
}

// PaddingRows is the number of zero rows appended before segmenting.
func (l Layout) PaddingRows() int {
	return l.SegmentHeight*DataShards - l.Original.Height
}

// ShardSet holds S1, S2 and S3 in order. A nil entry marks a missing shard.
type ShardSet [DataShards][]byte

// Available returns the number of non-nil shards.
func (s ShardSet) Available() int {
	n := 0
	for _, shard := range s {
		if shard != nil {
			n++
		}
	}
	return n
}

// Missing returns the indexes of nil shards in ascending order.
func (s ShardSet) Missing() []int {
	var missing []int
	for i, shard := range s {
		if shard == nil {
			missing = append(missing, i)
		}
	}
	return missing
}

// Clone returns a deep copy of s.
func (s ShardSet) Clone() ShardSet {
	var out ShardSet
	for i, shard := range s {
		if shard != nil {
			out[i] = append([]byte(nil), shard...)
		}
	}
	return out
}
