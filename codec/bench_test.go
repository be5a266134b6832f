package codec

import (
	"netcall/message"
	"testing"
)

// JSON 编解码性能（不走网络，纯 codec）
func BenchmarkCodecJSON(b *testing.B) {
	benchmarkCodec(b, GetCodec(CodecTypeJSON))
}

// Binary 编解码性能（不走网络，纯 codec）
func BenchmarkCodecBinary(b *testing.B) {
	benchmarkCodec(b, GetCodec(CodecTypeBinary))
}

func benchmarkCodec(b *testing.B, cdc Codec) {
	req := sampleRequest()
	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		data, err := cdc.Encode(req)
		if err != nil {
			b.Fatal(err)
		}
		var out message.Request
		if err := cdc.Decode(data, &out); err != nil {
			b.Fatal(err)
		}
	}
}
