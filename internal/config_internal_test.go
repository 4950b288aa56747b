package internal

import (
	"flag"
	"os"
	"time"

	. "github.com/onsi/ginkgo"
	. "github.com/onsi/gomega"

	"github.com/DrGermanius/buyback/internal/ingest"
)

var _ = Describe("Config", func() {
	keys := []string{UploadsDir, WatchStrategy, WatchProcessExisting, BatchWindow, StableTimeout, MaxRows, Timezone}

	BeforeEach(func() {
		for _, k := range keys {
			os.Unsetenv(k)
		}
	})
	AfterEach(func() {
		for _, k := range keys {
			os.Unsetenv(k)
		}
	})

	parse := func(args ...string) (*Config, error) {
		return parseConfig(flag.NewFlagSet("buyback", flag.ContinueOnError), args)
	}

	It("uses defaults", func() {
		c, err := parse()
		Expect(err).ShouldNot(HaveOccurred())
		Expect(c.RunAddress).To(Equal(defaultRunAddress))
		Expect(c.Strategy).To(Equal(ingest.StrategyBatched))
		Expect(c.ProcessExisting).To(BeFalse())
		Expect(c.BatchWindow).To(Equal(ingest.DefaultBatchWindow))
		Expect(c.PollInterval).To(Equal(ingest.DefaultPollInterval))
		Expect(c.StableTimeout).To(BeZero())
		Expect(c.MaxRows).To(Equal(defaultMaxRows))
		Expect(c.Location).To(Equal(time.Local))
	})
	It("reads the environment", func() {
		os.Setenv(UploadsDir, "/srv/uploads")
		os.Setenv(WatchStrategy, "immediate")
		os.Setenv(StableTimeout, "2m")
		os.Setenv(Timezone, "UTC")

		c, err := parse()
		Expect(err).ShouldNot(HaveOccurred())
		Expect(c.UploadsDir).To(Equal("/srv/uploads"))
		Expect(c.Strategy).To(Equal(ingest.StrategyImmediate))
		Expect(c.StableTimeout).To(Equal(2 * time.Minute))
		Expect(c.Location).To(Equal(time.UTC))

		w := c.WatcherConfig()
		Expect(w.Dir).To(Equal("/srv/uploads"))
		Expect(w.StableTimeout).To(Equal(2 * time.Minute))
	})
	It("lets flags override the environment", func() {
		os.Setenv(WatchStrategy, "immediate")

		c, err := parse("-s", "batched", "-e", "true", "-u", "/tmp/in")
		Expect(err).ShouldNot(HaveOccurred())
		Expect(c.Strategy).To(Equal(ingest.StrategyBatched))
		Expect(c.ProcessExisting).To(BeTrue())
		Expect(c.UploadsDir).To(Equal("/tmp/in"))
	})
	It("rejects bad values", func() {
		os.Setenv(WatchStrategy, "sometimes")
		_, err := parse()
		Expect(err).Should(HaveOccurred())

		os.Unsetenv(WatchStrategy)
		os.Setenv(BatchWindow, "soon")
		_, err = parse()
		Expect(err).Should(HaveOccurred())

		os.Unsetenv(BatchWindow)
		os.Setenv(MaxRows, "-1")
		_, err = parse()
		Expect(err).Should(HaveOccurred())
	})
})
