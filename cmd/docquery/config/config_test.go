package configcmder_test

import (
	"bytes"
	"os"
	"path/filepath"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	configcmder "github.com/papercomputeco/docquery/cmd/docquery/config"
)

var _ = Describe("NewConfigCmd", func() {
	It("creates a command with the correct use string", func() {
		cmd := configcmder.NewConfigCmd()
		Expect(cmd.Use).To(Equal("config"))
	})

	It("has set, get, and list subcommands", func() {
		cmd := configcmder.NewConfigCmd()
		cmds := cmd.Commands()
		subcommands := make([]string, 0, len(cmds))
		for _, sub := range cmds {
			subcommands = append(subcommands, sub.Name())
		}
		Expect(subcommands).To(ContainElements("set", "get", "list"))
	})
})

var _ = Describe("Config command execution", func() {
	var (
		tmpDir  string
		origDir string
		out     *bytes.Buffer
	)

	run := func(args ...string) error {
		cmd := configcmder.NewConfigCmd()
		cmd.SetOut(out)
		cmd.SetErr(out)
		cmd.SetArgs(args)
		return cmd.Execute()
	}

	BeforeEach(func() {
		var err error
		tmpDir, err = os.MkdirTemp("", "docquery-config-test-*")
		Expect(err).NotTo(HaveOccurred())

		origDir, err = os.Getwd()
		Expect(err).NotTo(HaveOccurred())

		// A local .docquery dir makes the configer pick it up.
		err = os.MkdirAll(filepath.Join(tmpDir, ".docquery"), 0o755)
		Expect(err).NotTo(HaveOccurred())

		err = os.Chdir(tmpDir)
		Expect(err).NotTo(HaveOccurred())

		out = &bytes.Buffer{}
	})

	AfterEach(func() {
		err := os.Chdir(origDir)
		Expect(err).NotTo(HaveOccurred())
		os.RemoveAll(tmpDir)
	})

	Describe("set subcommand", func() {
		It("sets a config value successfully", func() {
			Expect(run("set", "storage.driver", "sqlite")).To(Succeed())

			data, err := os.ReadFile(filepath.Join(tmpDir, ".docquery", "config.toml"))
			Expect(err).NotTo(HaveOccurred())
			Expect(string(data)).To(ContainSubstring(`driver = "sqlite"`))
		})

		It("rejects unknown keys", func() {
			Expect(run("set", "invalid_key", "value")).To(HaveOccurred())
		})

		It("requires a value for non-secret keys", func() {
			Expect(run("set", "storage.driver")).To(HaveOccurred())
		})

		It("rejects zero arguments", func() {
			Expect(run("set")).To(HaveOccurred())
		})

		It("rejects invalid uint values", func() {
			Expect(run("set", "embedding.dimensions", "not-a-number")).To(HaveOccurred())
		})

		It("masks secret values in its output", func() {
			Expect(run("set", "embedding.api_key", "sk-abcdefgh1234")).To(Succeed())
			Expect(out.String()).To(ContainSubstring("1234"))
			Expect(out.String()).NotTo(ContainSubstring("sk-abcdefgh"))
		})
	})

	Describe("get subcommand", func() {
		It("gets a previously set value", func() {
			Expect(run("set", "index.metric", "dot")).To(Succeed())

			out.Reset()
			Expect(run("get", "index.metric")).To(Succeed())
			Expect(out.String()).To(ContainSubstring("dot"))
		})

		It("runs without error for unset key", func() {
			Expect(run("get", "storage.dsn")).To(Succeed())
			Expect(out.String()).To(ContainSubstring("<not set>"))
		})

		It("rejects unknown keys", func() {
			Expect(run("get", "invalid_key")).To(HaveOccurred())
		})

		It("requires exactly one argument", func() {
			Expect(run("get")).To(HaveOccurred())
		})
	})

	Describe("list subcommand", func() {
		It("runs without error when no config exists", func() {
			Expect(run("list")).To(Succeed())
			Expect(out.String()).To(ContainSubstring("storage.driver"))
		})

		It("shows set values and masks secrets", func() {
			Expect(run("set", "events.provider", "kafka")).To(Succeed())
			Expect(run("set", "archive.secret_key", "supersecretvalue")).To(Succeed())

			out.Reset()
			Expect(run("list")).To(Succeed())
			Expect(out.String()).To(ContainSubstring(`"kafka"`))
			Expect(out.String()).NotTo(ContainSubstring("supersecretvalue"))
		})

		It("rejects extra arguments", func() {
			Expect(run("list", "extra")).To(HaveOccurred())
		})
	})
})
