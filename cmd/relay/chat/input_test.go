package chatcmder

import (
	"io"
	"strings"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
)

var _ = Describe("scanReader", func() {
	It("returns lines in order, then io.EOF", func() {
		r := newScanReader(strings.NewReader("first\n\nsecond"))

		Expect(r.ReadLine()).To(Equal("first"))
		Expect(r.ReadLine()).To(Equal(""))
		Expect(r.ReadLine()).To(Equal("second"))

		_, err := r.ReadLine()
		Expect(err).To(MatchError(io.EOF))
	})

	It("accepts lines longer than the default scanner limit", func() {
		long := strings.Repeat("x", 200*1024)
		r := newScanReader(strings.NewReader(long + "\n"))

		Expect(r.ReadLine()).To(HaveLen(len(long)))
	})
})
