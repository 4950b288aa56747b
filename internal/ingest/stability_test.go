package ingest_test

import (
	"context"
	"os"
	"path/filepath"
	"time"

	"go.uber.org/zap"

	. "github.com/onsi/ginkgo"
	. "github.com/onsi/gomega"

	"github.com/DrGermanius/buyback/internal/ingest"
)

// appendFor writes to path every tick until d has elapsed.
func appendFor(path string, d, tick time.Duration) {
	f, err := os.OpenFile(path, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o644)
	Expect(err).ShouldNot(HaveOccurred())
	defer f.Close()

	deadline := time.Now().Add(d)
	for time.Now().Before(deadline) {
		_, err = f.WriteString("orderId,orderDate\n")
		Expect(err).ShouldNot(HaveOccurred())
		time.Sleep(tick)
	}
}

var _ = Describe("SizePoller", func() {
	var (
		dir    string
		logger *zap.SugaredLogger
	)

	BeforeEach(func() {
		var err error
		dir, err = os.MkdirTemp("", "poller")
		Expect(err).ShouldNot(HaveOccurred())
		logger = zap.NewNop().Sugar()
	})
	AfterEach(func() {
		Expect(os.RemoveAll(dir)).Should(Succeed())
	})

	It("returns once the size stops changing", func() {
		path := filepath.Join(dir, "growing.csv")
		writing := make(chan struct{})
		go func() {
			defer GinkgoRecover()
			defer close(writing)
			appendFor(path, 200*time.Millisecond, 10*time.Millisecond)
		}()

		start := time.Now()
		p := ingest.NewSizePoller(50*time.Millisecond, 0, logger)
		Expect(p.WaitStable(context.Background(), path)).Should(Succeed())
		Expect(time.Since(start)).Should(BeNumerically(">=", 150*time.Millisecond))
		Eventually(writing).Should(BeClosed())
	})

	It("keeps polling while the file is missing", func() {
		path := filepath.Join(dir, "late.csv")
		go func() {
			defer GinkgoRecover()
			time.Sleep(120 * time.Millisecond)
			Expect(os.WriteFile(path, []byte("orderId\n"), 0o644)).Should(Succeed())
		}()

		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		p := ingest.NewSizePoller(30*time.Millisecond, 0, logger)
		Expect(p.WaitStable(ctx, path)).Should(Succeed())
	})

	It("gives up after the timeout", func() {
		path := filepath.Join(dir, "endless.csv")
		writing := make(chan struct{})
		go func() {
			defer GinkgoRecover()
			defer close(writing)
			appendFor(path, 400*time.Millisecond, 5*time.Millisecond)
		}()

		p := ingest.NewSizePoller(40*time.Millisecond, 150*time.Millisecond, logger)
		Expect(p.WaitStable(context.Background(), path)).Should(MatchError(ingest.ErrStableTimeout))
		Eventually(writing).Should(BeClosed())
	})

	It("stops when the context is cancelled", func() {
		ctx, cancel := context.WithCancel(context.Background())
		cancel()

		p := ingest.NewSizePoller(30*time.Millisecond, 0, logger)
		Expect(p.WaitStable(ctx, filepath.Join(dir, "never.csv"))).Should(MatchError(context.Canceled))
	})
})

var _ = Describe("Batcher", func() {
	var (
		batches chan []string
		b       *ingest.Batcher
	)

	BeforeEach(func() {
		batches = make(chan []string, 10)
		b = ingest.NewBatcher(200*time.Millisecond, func(batch []string) { batches <- batch }, zap.NewNop().Sugar())
	})
	AfterEach(func() {
		b.Stop()
	})

	It("flushes files that arrive within the window together", func() {
		b.Add("a.csv")
		time.Sleep(80 * time.Millisecond)
		b.Add("b.xlsx")

		Consistently(batches, 150*time.Millisecond).ShouldNot(Receive())
		Eventually(batches, time.Second).Should(Receive(Equal([]string{"a.csv", "b.xlsx"})))

		b.Add("c.csv")
		Eventually(batches, time.Second).Should(Receive(Equal([]string{"c.csv"})))
		Consistently(batches, 300*time.Millisecond).ShouldNot(Receive())
	})

	It("keeps one entry per filename", func() {
		b.Add("a.csv")
		b.Add("a.csv")
		Expect(b.Pending()).Should(Equal([]string{"a.csv"}))
		Eventually(batches, time.Second).Should(Receive(Equal([]string{"a.csv"})))
	})

	It("extends the window when a pending file is touched", func() {
		b.Add("a.csv")
		for i := 0; i < 4; i++ {
			time.Sleep(100 * time.Millisecond)
			b.Touch("a.csv")
			b.Touch("unknown.csv")
		}
		Expect(batches).ShouldNot(Receive())
		Eventually(batches, time.Second).Should(Receive(Equal([]string{"a.csv"})))
	})

	It("leaves forgotten files out of the batch", func() {
		b.Add("a.csv")
		b.Add("b.csv")
		b.Forget("a.csv")
		b.Forget("unknown.csv")

		Expect(b.Pending()).Should(Equal([]string{"b.csv"}))
		Eventually(batches, time.Second).Should(Receive(Equal([]string{"b.csv"})))
	})

	It("flushes nothing when every pending file is forgotten", func() {
		b.Add("a.csv")
		b.Forget("a.csv")

		Expect(b.Pending()).Should(BeEmpty())
		Consistently(batches, 400*time.Millisecond).ShouldNot(Receive())

		b.Add("c.csv")
		Eventually(batches, time.Second).Should(Receive(Equal([]string{"c.csv"})))
	})

	It("returns pending files on stop without flushing", func() {
		b.Add("a.csv")
		Expect(b.Stop()).Should(Equal([]string{"a.csv"}))
		Consistently(batches, 300*time.Millisecond).ShouldNot(Receive())
	})
})
