package squashctl

import (
	"bytes"
	"context"
	"io/ioutil"
	"os"
	"path/filepath"

	. "github.com/onsi/ginkgo"
	. "github.com/onsi/gomega"
	log "github.com/sirupsen/logrus"
	"github.com/solo-io/squash-session/pkg/breakpoints"
	"github.com/solo-io/squash-session/pkg/debuggers"
	"github.com/solo-io/squash-session/pkg/session"
	"github.com/spf13/viper"
)

var exceptionFixture = debuggers.ExceptionInfo{Type: "panic", Unhandled: true}

var _ = Describe("App", func() {
	var dir string

	BeforeEach(func() {
		var err error
		dir, err = ioutil.TempDir("", "squashctl")
		Expect(err).NotTo(HaveOccurred())
	})

	AfterEach(func() {
		os.RemoveAll(dir)
	})

	It("has the debug, run and completion commands", func() {
		app, err := App("test")
		Expect(err).NotTo(HaveOccurred())
		var names []string
		for _, c := range app.Commands() {
			names = append(names, c.Name())
		}
		Expect(names).To(ContainElement("debug"))
		Expect(names).To(ContainElement("run"))
		Expect(names).To(ContainElement("completion"))
	})

	It("generates bash completion", func() {
		cfg := filepath.Join(dir, "config.yaml")
		Expect(ioutil.WriteFile(cfg, []byte("log_level: error\n"), 0644)).To(Succeed())
		app, _ := App("test")
		out := &bytes.Buffer{}
		app.SetOutput(out)
		app.SetArgs([]string{"--config", cfg, "completion", "bash"})
		Expect(app.Execute()).To(Succeed())
		Expect(out.String()).To(ContainSubstring("squashctl"))
	})

	It("lets flags override the config file", func() {
		cfg := filepath.Join(dir, "config.yaml")
		Expect(ioutil.WriteFile(cfg, []byte("on_exception: break\ndlv_path: /opt/dlv\nlog_level: error\n"), 0644)).To(Succeed())

		o := &Options{}
		app, _ := App("test")
		cmd, _, err := app.Find([]string{"debug"})
		Expect(err).NotTo(HaveOccurred())
		Expect(cmd.ParseFlags([]string{"--on-exception", "ignore"})).To(Succeed())
		o.v = viper.New()
		o.ctx = context.Background()
		o.ConfigFile = cfg
		Expect(o.loadConfig(cmd)).To(Succeed())
		Expect(o.Config.OnException).To(Equal("ignore"))
		Expect(o.Config.DlvPath).To(Equal("/opt/dlv"))
	})

	It("turns on trace logging with --verbose", func() {
		defer log.SetLevel(log.InfoLevel)
		cfg := filepath.Join(dir, "config.yaml")
		Expect(ioutil.WriteFile(cfg, []byte("log_level: error\n"), 0644)).To(Succeed())

		o := &Options{v: viper.New(), ctx: context.Background(), ConfigFile: cfg}
		app, _ := App("test")
		cmd, _, err := app.Find([]string{"debug"})
		Expect(err).NotTo(HaveOccurred())
		Expect(cmd.ParseFlags([]string{"--verbose"})).To(Succeed())
		Expect(o.loadConfig(cmd)).To(Succeed())
		Expect(o.Config.Verbose).To(BeTrue())
		Expect(log.GetLevel()).To(Equal(log.TraceLevel))
	})

	Context("options", func() {
		It("builds fixed exception policies", func() {
			o := &Options{}
			o.Config.OnException = "continue"
			p, err := o.exceptionPolicy(nil)
			Expect(err).NotTo(HaveOccurred())
			Expect(p.Decide(exceptionFixture)).To(Equal(session.DecisionContinue))

			o.Config.OnException = "sometimes"
			_, err = o.exceptionPolicy(nil)
			Expect(err).To(HaveOccurred())
		})

		It("asks through the console unless in machine mode", func() {
			c := newConsole(&bytes.Buffer{}, false)
			o := &Options{}
			o.Config.OnException = "ask"
			p, err := o.exceptionPolicy(c)
			Expect(err).NotTo(HaveOccurred())
			Expect(p).To(BeIdenticalTo(c))

			o.Machine = true
			p, err = o.exceptionPolicy(c)
			Expect(err).NotTo(HaveOccurred())
			Expect(p.Decide(exceptionFixture)).To(Equal(session.DecisionBreak))
		})

		It("reports unsupported debuggers when a session starts", func() {
			o := &Options{}
			o.Config.Debugger = "gdb"
			_, err := o.engineFactory()()
			Expect(err).To(HaveOccurred())
		})

		It("collects breakpoints from the file and the flags", func() {
			fp := filepath.Join(dir, "bps.yaml")
			Expect(ioutil.WriteFile(fp, []byte("- file: a.go\n  line: 5\n"), 0644)).To(Succeed())
			o := &Options{}
			o.Config.BreakpointsFile = fp
			o.Debug.Breaks = []string{"b.go:7", "a.go:5"}

			registry := breakpoints.NewRegistry()
			Expect(o.loadBreakpoints(registry)).To(Succeed())
			Expect(registry.All()).To(HaveLen(2))
			_, ok := registry.Find("b.go", 6)
			Expect(ok).To(BeTrue())
		})

		It("refuses to debug nothing without a terminal", func() {
			o := &Options{Machine: true}
			var args []string
			Expect(o.ensureProgram(&args)).NotTo(Succeed())
		})
	})
})
