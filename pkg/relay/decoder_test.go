package relay_test

import (
	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/papercomputeco/relay/pkg/relay"
)

var _ = Describe("Decoder", func() {
	var d *relay.Decoder

	BeforeEach(func() {
		d = relay.NewDecoder()
	})

	It("decodes ASCII unchanged", func() {
		Expect(d.Decode([]byte("hello"))).To(Equal("hello"))
		Expect(d.Flush()).To(BeEmpty())
	})

	It("holds back a multi-byte sequence split across chunks", func() {
		euro := []byte("€") // e2 82 ac

		Expect(d.Decode([]byte{'a', euro[0]})).To(Equal("a"))
		Expect(d.Decode(euro[1:2])).To(BeEmpty())
		Expect(d.Decode(append(euro[2:], 'b'))).To(Equal("€b"))
		Expect(d.Flush()).To(BeEmpty())
	})

	It("decodes a four byte sequence fed one byte at a time", func() {
		var out string
		for _, b := range []byte("👋") {
			out += d.Decode([]byte{b})
		}
		out += d.Flush()
		Expect(out).To(Equal("👋"))
	})

	It("replaces invalid bytes", func() {
		Expect(d.Decode([]byte{'a', 0xff, 'b'})).To(Equal("a�b"))
	})

	It("replaces an incomplete sequence at end of input", func() {
		Expect(d.Decode([]byte{'a', 0xe2, 0x82})).To(Equal("a"))
		Expect(d.Flush()).To(ContainSubstring("�"))
	})

	It("can be reused after Flush", func() {
		_ = d.Decode([]byte{0xe2})
		_ = d.Flush()
		Expect(d.Decode([]byte("ok"))).To(Equal("ok"))
	})
})
