package relaycmder_test

import (
	"bytes"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	relaycmder "github.com/papercomputeco/relay/cmd/relay"
)

var _ = Describe("NewRelayCmd", func() {
	It("registers the subcommands", func() {
		cmd := relaycmder.NewRelayCmd()
		names := []string{}
		for _, sub := range cmd.Commands() {
			names = append(names, sub.Name())
		}
		Expect(names).To(ContainElements("serve", "chat", "config", "version"))
	})

	It("has global debug and config-dir flags", func() {
		cmd := relaycmder.NewRelayCmd()
		Expect(cmd.PersistentFlags().Lookup("debug")).NotTo(BeNil())
		Expect(cmd.PersistentFlags().ShorthandLookup("d")).NotTo(BeNil())
		Expect(cmd.PersistentFlags().Lookup("config-dir")).NotTo(BeNil())
	})

	It("passes --config-dir through to config subcommands", func() {
		dir := GinkgoT().TempDir()
		out := &bytes.Buffer{}

		cmd := relaycmder.NewRelayCmd()
		cmd.SetOut(out)
		cmd.SetArgs([]string{"--config-dir", dir, "config", "get", "server.mode"})
		Expect(cmd.Execute()).To(Succeed())
		Expect(out.String()).To(ContainSubstring(dir))
		Expect(out.String()).To(ContainSubstring("stream"))
	})
})
