package dotdir_test

import (
	"os"
	"path/filepath"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/papercomputeco/relay/pkg/dotdir"
)

// chdir moves into dir and points HOME at home until cleanup.
func chdir(dir, home string) {
	orig, err := os.Getwd()
	Expect(err).NotTo(HaveOccurred())
	Expect(os.Chdir(dir)).To(Succeed())
	DeferCleanup(func() { _ = os.Chdir(orig) })
	GinkgoT().Setenv("HOME", home)
}

var _ = Describe("Resolve", func() {
	var root string

	BeforeEach(func() {
		var err error
		// EvalSymlinks keeps paths comparable with filepath.Abs on macOS.
		root, err = filepath.EvalSymlinks(GinkgoT().TempDir())
		Expect(err).NotTo(HaveOccurred())
	})

	It("creates and returns the override", func() {
		dir := filepath.Join(root, "custom")

		loc, err := dotdir.Resolve(dir)
		Expect(err).NotTo(HaveOccurred())
		Expect(loc).To(Equal(dotdir.Location{Dir: dir, Source: dotdir.SourceOverride}))
		Expect(dir).To(BeADirectory())
	})

	It("prefers the override over a local directory", func() {
		Expect(os.Mkdir(filepath.Join(root, dotdir.Name), 0o755)).To(Succeed())
		chdir(root, root)

		loc, err := dotdir.Resolve(filepath.Join(root, "custom"))
		Expect(err).NotTo(HaveOccurred())
		Expect(loc.Source).To(Equal(dotdir.SourceOverride))
	})

	It("finds ./.relay before ~/.relay", func() {
		home := filepath.Join(root, "home")
		Expect(os.MkdirAll(filepath.Join(home, dotdir.Name), 0o755)).To(Succeed())
		Expect(os.Mkdir(filepath.Join(root, dotdir.Name), 0o755)).To(Succeed())
		chdir(root, home)

		loc, err := dotdir.Resolve("")
		Expect(err).NotTo(HaveOccurred())
		Expect(loc.Dir).To(Equal(filepath.Join(root, dotdir.Name)))
		Expect(loc.Source).To(Equal(dotdir.SourceLocal))
	})

	It("falls back to ~/.relay", func() {
		work := filepath.Join(root, "work")
		home := filepath.Join(root, "home")
		Expect(os.Mkdir(work, 0o755)).To(Succeed())
		Expect(os.MkdirAll(filepath.Join(home, dotdir.Name), 0o755)).To(Succeed())
		chdir(work, home)

		loc, err := dotdir.Resolve("")
		Expect(err).NotTo(HaveOccurred())
		Expect(loc.Dir).To(Equal(filepath.Join(home, dotdir.Name)))
		Expect(loc.Source.String()).To(Equal("home"))
	})

	It("returns an empty location without creating anything", func() {
		chdir(root, root)

		loc, err := dotdir.Resolve("")
		Expect(err).NotTo(HaveOccurred())
		Expect(loc.Found()).To(BeFalse())
		Expect(loc.Source).To(Equal(dotdir.SourceNone))
		Expect(loc.Join("config.toml")).To(BeEmpty())
		Expect(filepath.Join(root, dotdir.Name)).NotTo(BeAnExistingFile())
	})
})

var _ = Describe("EnsureHome", func() {
	It("creates ~/.relay", func() {
		home := GinkgoT().TempDir()
		GinkgoT().Setenv("HOME", home)

		loc, err := dotdir.EnsureHome()
		Expect(err).NotTo(HaveOccurred())
		Expect(loc.Join("config.toml")).To(Equal(filepath.Join(home, dotdir.Name, "config.toml")))
		Expect(loc.Dir).To(BeADirectory())
	})
})
