package loader_test

import (
	"bytes"
	"os"
	"path/filepath"
	"strings"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/sarchlab/t16sim/insts"
	"github.com/sarchlab/t16sim/loader"
)

var counter = []uint16{
	insts.LI(0, 0),
	insts.LI(1, 10),
	insts.ADDI(0, 0, 1),
	insts.CMP(0, 1),
	insts.NOP(),
	insts.NOP(),
	insts.BNE(-6),
	insts.NOP(),
	insts.NOP(),
	insts.HLT(),
}

var _ = Describe("Program images", func() {
	var tempDir string

	BeforeEach(func() {
		tempDir = GinkgoT().TempDir()
	})

	Describe("container", func() {
		DescribeTable("round trip",
			func(origin uint16, compress bool) {
				p := &loader.Program{Origin: origin, Words: counter}
				var opts []loader.SaveOption
				if compress {
					opts = append(opts, loader.WithCompression())
				}

				path := filepath.Join(tempDir, "counter.t16")
				Expect(loader.Save(path, p, opts...)).To(Succeed())

				loaded, err := loader.LoadFile(path)
				Expect(err).NotTo(HaveOccurred())
				Expect(loaded.Origin).To(Equal(origin))
				Expect(loaded.Words).To(Equal(counter))
			},
			Entry("plain at zero", uint16(0), false),
			Entry("compressed at zero", uint16(0), true),
			Entry("plain with origin", uint16(0x200), false),
			Entry("compressed with origin", uint16(0x200), true),
		)

		It("should start with the magic and set the compression flag", func() {
			var buf bytes.Buffer
			p := &loader.Program{Words: counter}
			Expect(loader.WriteImage(&buf, p, true)).To(Succeed())

			data := buf.Bytes()
			Expect(string(data[:4])).To(Equal(loader.Magic))
			Expect(data[12:14]).To(Equal([]byte{0, 1}))
		})

		It("should reject a bad magic", func() {
			_, err := loader.ReadImage(strings.NewReader("NOPE\x00\x01\x00\x00\x00\x00\x00\x00\x00\x00"))
			Expect(err).To(MatchError(loader.ErrBadMagic))
		})

		It("should reject a short header", func() {
			_, err := loader.ReadImage(strings.NewReader("T16"))
			Expect(err).To(HaveOccurred())
		})

		It("should reject a truncated body", func() {
			var buf bytes.Buffer
			Expect(loader.WriteImage(&buf, &loader.Program{Words: counter}, false)).To(Succeed())
			data := buf.Bytes()

			_, err := loader.ReadImage(bytes.NewReader(data[:len(data)-1]))
			Expect(err).To(MatchError(ContainSubstring("header promises 10 words")))
		})

		It("should reject a corrupt compressed body", func() {
			var buf bytes.Buffer
			Expect(loader.WriteImage(&buf, &loader.Program{Words: counter}, true)).To(Succeed())
			data := buf.Bytes()
			data = append(data[:14:14], 0xff, 0xff, 0xff)

			_, err := loader.ReadImage(bytes.NewReader(data))
			Expect(err).To(MatchError(ContainSubstring("failed to decompress body")))
		})

		It("should reject a program that overruns memory", func() {
			p := &loader.Program{Origin: 0xfff0, Words: make([]uint16, 0x20)}
			Expect(loader.WriteImage(&bytes.Buffer{}, p, false)).To(HaveOccurred())
		})
	})

	Describe("hex", func() {
		It("should parse words, origin and comments", func() {
			text := `# counter program
@0010
0x1000 ; LI r0, 0
100a
2401 2200
`
			p, err := loader.ReadHex(strings.NewReader(text))
			Expect(err).NotTo(HaveOccurred())

			Expect(p.Origin).To(Equal(uint16(0x10)))
			Expect(p.Words).To(Equal([]uint16{0x1000, 0x100a, 0x2401, 0x2200}))
			Expect(p.Comments).To(Equal(map[uint16]string{0x10: "LI r0, 0"}))
			Expect(p.End()).To(Equal(0x14))
		})

		It("should round trip through a file", func() {
			p := &loader.Program{
				Origin:   4,
				Words:    counter,
				Comments: map[uint16]string{4: "start", 10: "loop back"},
			}

			path := filepath.Join(tempDir, "counter.hex")
			Expect(loader.Save(path, p)).To(Succeed())

			loaded, err := loader.LoadFile(path)
			Expect(err).NotTo(HaveOccurred())
			Expect(loaded).To(Equal(p))
			Expect(loaded.CommentAddresses()).To(Equal([]uint16{4, 10}))
		})

		It("should reject a bad word", func() {
			_, err := loader.ReadHex(strings.NewReader("1000\nzzzz\n"))
			Expect(err).To(MatchError(ContainSubstring("line 2")))
		})

		It("should reject an origin after words", func() {
			_, err := loader.ReadHex(strings.NewReader("1000\n@0020\n"))
			Expect(err).To(HaveOccurred())
		})
	})

	Describe("raw", func() {
		It("should round trip through a file", func() {
			path := filepath.Join(tempDir, "counter.bin")
			Expect(loader.Save(path, &loader.Program{Words: counter})).To(Succeed())

			data, err := os.ReadFile(path)
			Expect(err).NotTo(HaveOccurred())
			Expect(data).To(HaveLen(2 * len(counter)))
			Expect(data[:2]).To(Equal([]byte{byte(counter[0] >> 8), byte(counter[0])}))

			loaded, err := loader.LoadFile(path)
			Expect(err).NotTo(HaveOccurred())
			Expect(loaded.Origin).To(BeZero())
			Expect(loaded.Words).To(Equal(counter))
		})

		It("should refuse a raw image with an origin", func() {
			path := filepath.Join(tempDir, "moved.bin")
			err := loader.Save(path, &loader.Program{Origin: 2, Words: counter})
			Expect(err).To(HaveOccurred())
		})

		It("should reject an odd length", func() {
			_, err := loader.ReadRaw([]byte{1, 2, 3})
			Expect(err).To(HaveOccurred())
		})
	})

	It("should report a missing file", func() {
		_, err := loader.LoadFile(filepath.Join(tempDir, "missing.t16"))
		Expect(err).To(MatchError(ContainSubstring("failed to read program image")))
	})
})
