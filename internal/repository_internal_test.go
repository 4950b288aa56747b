package internal

import (
	"strings"

	. "github.com/onsi/ginkgo"
	. "github.com/onsi/gomega"
)

var _ = Describe("Upsert query", func() {
	It("never writes the review fields", func() {
		set := upsertOrderQuery[strings.Index(upsertOrderQuery, "DO UPDATE SET"):]
		Expect(set).NotTo(ContainSubstring("action_status ="))
		Expect(set).NotTo(ContainSubstring("locked ="))
		Expect(set).To(ContainSubstring("old_item_status = EXCLUDED.old_item_status"))
	})
})
