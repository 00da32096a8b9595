package lowir_test

import (
	"bytes"
	"strings"
	"testing"

	"github.com/google/go-cmp/cmp"

	"unstack/internal/lowir"
)

func sampleProgram() *lowir.Program {
	return &lowir.Program{
		Globals: []lowir.Global{{Name: "g", Type: lowir.F64, Mutable: true, Init: lowir.F64Value(1.5)}},
		Imports: []lowir.Import{{Name: "log", Sig: lowir.Signature{Params: []lowir.Type{lowir.I32}}}},
		Table:   []string{"id"},
		Funcs: []*lowir.Func{{
			Name:    "id",
			Params:  []lowir.Param{{Name: "x", Type: lowir.I32}},
			Results: []lowir.Type{lowir.I32},
			Body: []lowir.Instr{
				lowir.ParamGet("x", lowir.I32),
				lowir.ConstI32(-3),
				lowir.BinaryUnsigned(lowir.BinaryLt, lowir.I32),
				{Kind: lowir.InstrIf, If: lowir.IfInstr{
					Results: []lowir.Type{lowir.I32},
					Then:    []lowir.Instr{lowir.ConstI32(1)},
					Else:    []lowir.Instr{lowir.ConstI32(0)},
				}},
				lowir.Return(),
			},
		}},
	}
}

func TestCodec_RoundTrip(t *testing.T) {
	for _, format := range []lowir.Format{lowir.FormatMsgpack, lowir.FormatJSON} {
		var buf bytes.Buffer
		want := sampleProgram()
		if err := lowir.Encode(&buf, want, format); err != nil {
			t.Fatalf("format %d: encode: %v", format, err)
		}
		got, err := lowir.Decode(&buf, format)
		if err != nil {
			t.Fatalf("format %d: decode: %v", format, err)
		}
		if diff := cmp.Diff(want, got); diff != "" {
			t.Errorf("format %d: round trip mismatch (-want +got):\n%s", format, diff)
		}
	}
}

func TestDumpFunc(t *testing.T) {
	var sb strings.Builder
	if err := lowir.DumpFunc(&sb, sampleProgram().Funcs[0]); err != nil {
		t.Fatal(err)
	}
	want := `func id(i32) -> (i32)
  param.get i32 x
  const i32 -3
  lt i32 unsigned
  if () -> (i32)
    const i32 1
  else
    const i32 0
  end
  return
`
	if diff := cmp.Diff(want, sb.String()); diff != "" {
		t.Errorf("dump mismatch (-want +got):\n%s", diff)
	}
}
