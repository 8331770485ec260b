package turbine

import (
	"fmt"
	"math"

	"github.com/df-mc/dragonfly/server/block/cube"
	"google.golang.org/protobuf/encoding/protowire"
)

// UpdatePacket is the observer-facing summary of a turbine. Field numbers are
// fixed; decoders skip numbers they do not know.
//
// The server sends Marshal output base64 encoded in PACKET messages on
// /v1/observe. Observers decode with UnmarshalPacket and mirror it onto a
// local Turbine with ApplyPacket.
type UpdatePacket struct {
	Controller          cube.Pos // 1
	On                  bool     // 2
	Power               float64  // 3
	RawConductivity     float64  // 4
	TotalExpansion      float64  // 5
	IdealTotalExpansion float64  // 6
	RecipeRate          int      // 7
	ShaftWidth          int      // 8
	BladeLength         int      // 9
	BladeSets           int      // 10
	Capacity            int      // 11
	Energy              int      // 12
	FlowDir             int      // 13, -1 when unset
}

func (t *Turbine) Packet() UpdatePacket {
	p := UpdatePacket{
		Controller:          t.controller,
		On:                  t.on,
		Power:               t.power,
		RawConductivity:     t.rawConductivity,
		TotalExpansion:      t.totalExpansion,
		IdealTotalExpansion: t.idealTotalExpansion,
		RecipeRate:          t.recipeRate,
		ShaftWidth:          t.shaftWidth,
		BladeLength:         t.bladeLength,
		BladeSets:           t.bladeSets,
		Capacity:            t.Energy.Capacity(),
		Energy:              t.Energy.Stored(),
		FlowDir:             -1,
	}
	if t.hasFlow {
		p.FlowDir = int(t.flowDir)
	}
	return p
}

// ApplyPacket mirrors a server packet onto an observer-side turbine.
func (t *Turbine) ApplyPacket(p UpdatePacket) {
	t.controller = p.Controller
	t.on = p.On
	t.power = p.Power
	t.rawConductivity = p.RawConductivity
	t.totalExpansion = p.TotalExpansion
	t.idealTotalExpansion = p.IdealTotalExpansion
	t.recipeRate = p.RecipeRate
	t.shaftWidth = p.ShaftWidth
	t.bladeLength = p.BladeLength
	t.bladeSets = p.BladeSets
	t.Energy.SetCapacity(p.Capacity)
	t.Energy.SetStored(p.Energy)
	if p.FlowDir >= 0 && p.FlowDir < len(cube.Faces()) {
		t.flowDir, t.hasFlow = cube.Face(p.FlowDir), true
	} else {
		t.flowDir, t.hasFlow = 0, false
	}
}

func appendInt(b []byte, num protowire.Number, v int) []byte {
	b = protowire.AppendTag(b, num, protowire.VarintType)
	return protowire.AppendVarint(b, protowire.EncodeZigZag(int64(v)))
}

func appendDouble(b []byte, num protowire.Number, v float64) []byte {
	b = protowire.AppendTag(b, num, protowire.Fixed64Type)
	return protowire.AppendFixed64(b, math.Float64bits(v))
}

func (p UpdatePacket) Marshal() []byte {
	var pos []byte
	for _, c := range p.Controller {
		pos = protowire.AppendVarint(pos, protowire.EncodeZigZag(int64(c)))
	}
	b := make([]byte, 0, 96)
	b = protowire.AppendTag(b, 1, protowire.BytesType)
	b = protowire.AppendBytes(b, pos)
	b = protowire.AppendTag(b, 2, protowire.VarintType)
	b = protowire.AppendVarint(b, protowire.EncodeBool(p.On))
	b = appendDouble(b, 3, p.Power)
	b = appendDouble(b, 4, p.RawConductivity)
	b = appendDouble(b, 5, p.TotalExpansion)
	b = appendDouble(b, 6, p.IdealTotalExpansion)
	b = appendInt(b, 7, p.RecipeRate)
	b = appendInt(b, 8, p.ShaftWidth)
	b = appendInt(b, 9, p.BladeLength)
	b = appendInt(b, 10, p.BladeSets)
	b = appendInt(b, 11, p.Capacity)
	b = appendInt(b, 12, p.Energy)
	b = appendInt(b, 13, p.FlowDir)
	return b
}

func UnmarshalPacket(b []byte) (UpdatePacket, error) {
	p := UpdatePacket{FlowDir: -1}
	for len(b) > 0 {
		num, typ, n := protowire.ConsumeTag(b)
		if n < 0 {
			return p, fmt.Errorf("turbine packet: %w", protowire.ParseError(n))
		}
		b = b[n:]

		switch {
		case num == 1 && typ == protowire.BytesType:
			raw, m := protowire.ConsumeBytes(b)
			if m < 0 {
				return p, fmt.Errorf("turbine packet: controller: %w", protowire.ParseError(m))
			}
			for i := 0; i < 3 && len(raw) > 0; i++ {
				v, k := protowire.ConsumeVarint(raw)
				if k < 0 {
					return p, fmt.Errorf("turbine packet: controller: %w", protowire.ParseError(k))
				}
				p.Controller[i] = int(protowire.DecodeZigZag(v))
				raw = raw[k:]
			}
			n = m
		case num == 2 && typ == protowire.VarintType:
			v, m := protowire.ConsumeVarint(b)
			p.On = protowire.DecodeBool(v)
			n = m
		case num >= 3 && num <= 6 && typ == protowire.Fixed64Type:
			v, m := protowire.ConsumeFixed64(b)
			f := math.Float64frombits(v)
			switch num {
			case 3:
				p.Power = f
			case 4:
				p.RawConductivity = f
			case 5:
				p.TotalExpansion = f
			case 6:
				p.IdealTotalExpansion = f
			}
			n = m
		case num >= 7 && num <= 13 && typ == protowire.VarintType:
			v, m := protowire.ConsumeVarint(b)
			i := int(protowire.DecodeZigZag(v))
			switch num {
			case 7:
				p.RecipeRate = i
			case 8:
				p.ShaftWidth = i
			case 9:
				p.BladeLength = i
			case 10:
				p.BladeSets = i
			case 11:
				p.Capacity = i
			case 12:
				p.Energy = i
			case 13:
				p.FlowDir = i
			}
			n = m
		default:
			n = protowire.ConsumeFieldValue(num, typ, b)
		}
		if n < 0 {
			return p, fmt.Errorf("turbine packet: field %d: %w", num, protowire.ParseError(n))
		}
		b = b[n:]
	}
	return p, nil
}
