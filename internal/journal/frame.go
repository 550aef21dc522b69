package journal

import (
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"math"
	"time"
)

// FireFrame is one discharge applied on the recording peer, with the weapon
// state it was computed from.
type FireFrame struct {
	Tick        uint64
	CapturedAt  time.Time
	Shooter     int32
	Weapon      string
	Mode        uint8
	FacingRight bool
	Seed        int32
	Aim         float32
	SpreadBonus float32
	Recoil      float32
	RecoilDelta float32
	Pellets     uint16
}

// fixed part: tick, captured, shooter, mode, facing, seed, aim, spread,
// recoil, recoil delta, pellets, weapon name length.
const frameHeaderSize = 8 + 8 + 4 + 1 + 1 + 4 + 4 + 4 + 4 + 4 + 2 + 1

var errWeaponName = errors.New("weapon name longer than 255 bytes")

func (f FireFrame) appendTo(b []byte) ([]byte, error) {
	if len(f.Weapon) > math.MaxUint8 {
		return b, errWeaponName
	}
	var facing uint8
	if f.FacingRight {
		facing = 1
	}
	b = binary.LittleEndian.AppendUint64(b, f.Tick)
	b = binary.LittleEndian.AppendUint64(b, uint64(f.CapturedAt.UnixNano()))
	b = binary.LittleEndian.AppendUint32(b, uint32(f.Shooter))
	b = append(b, f.Mode, facing)
	b = binary.LittleEndian.AppendUint32(b, uint32(f.Seed))
	b = binary.LittleEndian.AppendUint32(b, math.Float32bits(f.Aim))
	b = binary.LittleEndian.AppendUint32(b, math.Float32bits(f.SpreadBonus))
	b = binary.LittleEndian.AppendUint32(b, math.Float32bits(f.Recoil))
	b = binary.LittleEndian.AppendUint32(b, math.Float32bits(f.RecoilDelta))
	b = binary.LittleEndian.AppendUint16(b, f.Pellets)
	b = append(b, uint8(len(f.Weapon)))
	return append(b, f.Weapon...), nil
}

// readFrame decodes the next frame. It returns io.EOF at a clean end of stream.
func readFrame(r io.Reader) (FireFrame, error) {
	var head [frameHeaderSize]byte
	if _, err := io.ReadFull(r, head[:]); err != nil {
		if errors.Is(err, io.ErrUnexpectedEOF) {
			return FireFrame{}, fmt.Errorf("truncated fire frame: %w", err)
		}
		return FireFrame{}, err
	}
	le := binary.LittleEndian
	f := FireFrame{
		Tick:        le.Uint64(head[0:8]),
		CapturedAt:  time.Unix(0, int64(le.Uint64(head[8:16]))).UTC(),
		Shooter:     int32(le.Uint32(head[16:20])),
		Mode:        head[20],
		FacingRight: head[21] == 1,
		Seed:        int32(le.Uint32(head[22:26])),
		Aim:         math.Float32frombits(le.Uint32(head[26:30])),
		SpreadBonus: math.Float32frombits(le.Uint32(head[30:34])),
		Recoil:      math.Float32frombits(le.Uint32(head[34:38])),
		RecoilDelta: math.Float32frombits(le.Uint32(head[38:42])),
		Pellets:     le.Uint16(head[42:44]),
	}
	name := make([]byte, head[44])
	if _, err := io.ReadFull(r, name); err != nil {
		if errors.Is(err, io.EOF) {
			err = io.ErrUnexpectedEOF
		}
		return FireFrame{}, fmt.Errorf("truncated weapon name: %w", err)
	}
	f.Weapon = string(name)
	return f, nil
}
