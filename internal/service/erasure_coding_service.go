package service

import (
	"bytes"
	"errors"
	"fmt"
	"hash/crc64"

	"github.com/klauspost/reedsolomon"
	"github.com/zzenonn/zraid/internal/domain"
	zerrors "github.com/zzenonn/zraid/internal/errors"
)

// Parity rows over GF(2^8). The first row is plain XOR in both modes; the
// second row uses distinct non-zero coefficients so that any two lost data
// shards can be solved for from P and Q.
var (
	singleParityMatrix = [][]byte{{1, 1, 1}}
	dualParityMatrix   = [][]byte{{1, 1, 1}, {1, 2, 4}}
)

var crcTable = crc64.MakeTable(crc64.ISO)

func newEncoder(mode domain.ParityMode) (reedsolomon.Encoder, error) {
	switch mode {
	case domain.RAID5:
		return reedsolomon.New(domain.DataShards, len(singleParityMatrix), reedsolomon.WithCustomMatrix(singleParityMatrix))
	case domain.RAID6:
		return reedsolomon.New(domain.DataShards, len(dualParityMatrix), reedsolomon.WithCustomMatrix(dualParityMatrix))
	}
	return nil, fmt.Errorf("%w: %q", zerrors.ErrUnsupportedMode, mode)
}

// ShardHash returns the CRC-64 (ISO) of a blob as a 16 digit hex string.
func ShardHash(b []byte) string {
	return fmt.Sprintf("%016x", crc64.Checksum(b, crcTable))
}

// Split pads obj with zero rows to a multiple of three and slices it into
// three shards of equal height. The returned Layout must be passed to
// Reconstruct to trim the padding again.
func Split(obj domain.Object) (domain.ShardSet, domain.Layout, error) {
	s := obj.Shape
	if !s.Valid() {
		return domain.ShardSet{}, domain.Layout{}, fmt.Errorf("%w: %dx%dx%d", zerrors.ErrInvalidShape, s.Height, s.Width, s.Channels)
	}
	if len(obj.Data) != s.Len() {
		return domain.ShardSet{}, domain.Layout{}, fmt.Errorf("%w: shape %dx%dx%d needs %d bytes, got %d",
			zerrors.ErrInvalidShape, s.Height, s.Width, s.Channels, s.Len(), len(obj.Data))
	}

	layout := domain.Layout{
		Original:      s,
		SegmentHeight: (s.Height + domain.DataShards - 1) / domain.DataShards,
	}
	segLen := layout.SegmentLen()

	var shards domain.ShardSet
	for i := range shards {
		shard := make([]byte, segLen)
		start := i * segLen
		if start < len(obj.Data) {
			copy(shard, obj.Data[start:])
		}
		// Anything past the end of the object stays zero.
		shards[i] = shard
	}

	return shards, layout, nil
}

// Parity5 returns P = S1 xor S2 xor S3.
func Parity5(shards domain.ShardSet) ([]byte, error) {
	parity, err := encodeParity(domain.RAID5, shards)
	if err != nil {
		return nil, err
	}
	return parity[0], nil
}

// Parity6 returns P (plain XOR) and Q = S1 + 2*S2 + 4*S3 over GF(2^8).
func Parity6(shards domain.ShardSet) (p, q []byte, err error) {
	parity, err := encodeParity(domain.RAID6, shards)
	if err != nil {
		return nil, nil, err
	}
	return parity[0], parity[1], nil
}

// Parity computes the parity blocks for mode in role order.
func Parity(mode domain.ParityMode, shards domain.ShardSet) ([][]byte, error) {
	return encodeParity(mode, shards)
}

func encodeParity(mode domain.ParityMode, shards domain.ShardSet) ([][]byte, error) {
	if shards.Available() != domain.DataShards {
		return nil, fmt.Errorf("%w: parity needs all %d shards, have %d", zerrors.ErrShapeMismatch, domain.DataShards, shards.Available())
	}
	size, err := commonSize(shards[:]...)
	if err != nil {
		return nil, err
	}

	enc, err := newEncoder(mode)
	if err != nil {
		return nil, err
	}

	all := make([][]byte, 0, domain.DataShards+2)
	all = append(all, shards[:]...)
	parityCount := len(singleParityMatrix)
	if mode == domain.RAID6 {
		parityCount = len(dualParityMatrix)
	}
	for i := 0; i < parityCount; i++ {
		all = append(all, make([]byte, size))
	}

	// Encode only reads the data shards and fills the parity ones.
	if err := enc.Encode(all); err != nil {
		return nil, fmt.Errorf("failed to encode parity: %w", err)
	}
	return all[domain.DataShards:], nil
}

// Recover5 fills in at most one missing shard from the other two and P.
// With all three shards present it only checks them against P.
func Recover5(shards domain.ShardSet, p []byte) (domain.ShardSet, error) {
	if p == nil && shards.Available() == domain.DataShards {
		return shards.Clone(), nil
	}
	if p == nil || shards.Available() < domain.DataShards-1 {
		return domain.ShardSet{}, fmt.Errorf("%w: single parity needs 2 shards and P, have %d shards, P present: %t",
			zerrors.ErrInsufficientShards, shards.Available(), p != nil)
	}
	return recoverShards(domain.RAID5, shards, p)
}

// Recover6 fills in up to two missing shards from the survivors, P and Q.
// Either parity block may be nil as long as three blocks in total survive.
func Recover6(shards domain.ShardSet, p, q []byte) (domain.ShardSet, error) {
	survivors := shards.Available()
	for _, b := range [][]byte{p, q} {
		if b != nil {
			survivors++
		}
	}
	if survivors < domain.DataShards {
		return domain.ShardSet{}, fmt.Errorf("%w: dual parity needs 3 of S1, S2, S3, P, Q, have %d shards, P present: %t, Q present: %t",
			zerrors.ErrInsufficientShards, shards.Available(), p != nil, q != nil)
	}
	return recoverShards(domain.RAID6, shards, p, q)
}

// Recover dispatches to Recover5 when at least two shards and P survive and
// to Recover6 otherwise. parity is given in role order for mode.
func Recover(mode domain.ParityMode, shards domain.ShardSet, parity [][]byte) (domain.ShardSet, error) {
	if shards.Available() == domain.DataShards {
		return shards.Clone(), nil
	}
	switch mode {
	case domain.RAID5:
		if len(parity) < 1 {
			return domain.ShardSet{}, zerrors.ErrInsufficientShards
		}
		return Recover5(shards, parity[0])
	case domain.RAID6:
		if len(parity) < 2 {
			return domain.ShardSet{}, zerrors.ErrInsufficientShards
		}
		if shards.Available() >= domain.DataShards-1 && parity[0] != nil {
			return Recover5(shards, parity[0])
		}
		return Recover6(shards, parity[0], parity[1])
	}
	return domain.ShardSet{}, fmt.Errorf("%w: %q", zerrors.ErrUnsupportedMode, mode)
}

func recoverShards(mode domain.ParityMode, shards domain.ShardSet, parity ...[]byte) (domain.ShardSet, error) {
	present := make([][]byte, 0, domain.DataShards+len(parity))
	for _, s := range shards {
		if s != nil {
			present = append(present, s)
		}
	}
	for _, b := range parity {
		if b != nil {
			present = append(present, b)
		}
	}
	if _, err := commonSize(present...); err != nil {
		return domain.ShardSet{}, err
	}

	enc, err := newEncoder(mode)
	if err != nil {
		return domain.ShardSet{}, err
	}

	// Work on copies so the caller's buffers are never touched.
	work := make([][]byte, domain.DataShards+len(parity))
	for i, s := range shards {
		if s != nil {
			work[i] = append([]byte(nil), s...)
		}
	}
	for i, b := range parity {
		if b != nil {
			work[domain.DataShards+i] = append([]byte(nil), b...)
		}
	}

	if err := enc.ReconstructData(work); err != nil {
		if errors.Is(err, reedsolomon.ErrTooFewShards) {
			return domain.ShardSet{}, fmt.Errorf("%w: %v", zerrors.ErrInsufficientShards, err)
		}
		return domain.ShardSet{}, fmt.Errorf("failed to reconstruct shards: %w", err)
	}

	var recovered domain.ShardSet
	copy(recovered[:], work[:domain.DataShards])

	if err := verifyParity(mode, recovered, parity); err != nil {
		return domain.ShardSet{}, err
	}
	return recovered, nil
}

// verifyParity re-derives every parity block from the completed shard set
// and requires a byte-for-byte match with the supplied blocks. Missing blocks
// are skipped.
func verifyParity(mode domain.ParityMode, shards domain.ShardSet, parity [][]byte) error {
	derived, err := encodeParity(mode, shards)
	if err != nil {
		return err
	}
	for i := range parity {
		if parity[i] != nil && !bytes.Equal(derived[i], parity[i]) {
			return fmt.Errorf("%w: %s parity block %d differs after reconstruction", zerrors.ErrRecoveryVerificationFailed, mode, i)
		}
	}
	return nil
}

// Reconstruct concatenates S1, S2 and S3 and trims the padding recorded in
// layout.
func Reconstruct(shards domain.ShardSet, layout domain.Layout) (domain.Object, error) {
	if layout.IsZero() {
		return domain.Object{}, fmt.Errorf("%w: no recorded original shape", zerrors.ErrShapeMismatch)
	}
	segLen := layout.SegmentLen()
	for i, s := range shards {
		if s == nil {
			return domain.Object{}, fmt.Errorf("%w: shard %d is missing", zerrors.ErrShapeMismatch, i+1)
		}
		if len(s) != segLen {
			return domain.Object{}, fmt.Errorf("%w: shard %d has %d bytes, layout expects %d", zerrors.ErrShapeMismatch, i+1, len(s), segLen)
		}
	}

	data := make([]byte, layout.Original.Len())
	offset := 0
	for _, s := range shards {
		offset += copy(data[offset:], s)
	}

	return domain.Object{Shape: layout.Original, Data: data}, nil
}

func commonSize(blocks ...[]byte) (int, error) {
	if len(blocks) == 0 {
		return 0, zerrors.ErrInsufficientShards
	}
	size := len(blocks[0])
	if size == 0 {
		return 0, fmt.Errorf("%w: empty block", zerrors.ErrShapeMismatch)
	}
	for _, b := range blocks[1:] {
		if len(b) != size {
			return 0, fmt.Errorf("%w: block sizes %d and %d differ", zerrors.ErrShapeMismatch, size, len(b))
		}
	}
	return size, nil
}
