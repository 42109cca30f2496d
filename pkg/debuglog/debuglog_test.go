package debuglog_test

import (
	"bytes"
	"context"
	"net/http/httptest"
	"sync"

	. "github.com/onsi/ginkgo"
	. "github.com/onsi/gomega"
	log "github.com/sirupsen/logrus"
	"github.com/solo-io/go-utils/contextutils"
	"github.com/solo-io/squash-session/pkg/debuglog"
)

type safeBuffer struct {
	mu  sync.Mutex
	buf bytes.Buffer
}

func (b *safeBuffer) Write(p []byte) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.Write(p)
}

func (b *safeBuffer) String() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.String()
}

var _ = Describe("debuglog", func() {
	AfterEach(func() {
		log.SetLevel(log.InfoLevel)
	})

	It("sets the logrus level and puts a logger in the context", func() {
		ctx, err := debuglog.Setup(context.Background(), debuglog.Options{Level: "debug", Out: &bytes.Buffer{}})
		Expect(err).NotTo(HaveOccurred())
		Expect(log.GetLevel()).To(Equal(log.DebugLevel))
		Expect(contextutils.LoggerFrom(ctx)).NotTo(BeNil())
	})

	It("logs everything when verbose", func() {
		_, err := debuglog.Setup(context.Background(), debuglog.Options{Level: "warn", Verbose: true, Out: &bytes.Buffer{}})
		Expect(err).NotTo(HaveOccurred())
		Expect(log.GetLevel()).To(Equal(log.TraceLevel))
		Expect(log.IsLevelEnabled(log.TraceLevel)).To(BeTrue())
	})

	It("rejects unknown levels", func() {
		_, err := debuglog.Setup(context.Background(), debuglog.Options{Level: "chatty"})
		Expect(err).To(HaveOccurred())
	})

	It("spools entries to a url", func() {
		spooled := &safeBuffer{}
		server := httptest.NewServer(debuglog.SpoolHandler(spooled))
		defer server.Close()

		logger, err := debuglog.NewLogger(debuglog.Options{Level: "error", SpoolURL: server.URL})
		Expect(err).NotTo(HaveOccurred())
		logger.Infow("breakpoint installed", "line", 11)
		logger.Sync()

		Eventually(spooled.String).Should(ContainSubstring("breakpoint installed"))
		Expect(spooled.String()).To(ContainSubstring(`"line":11`))
	})
})
