package brain_test

import (
	"strings"

	"basegraph.app/counsel/internal/brain"
	"basegraph.app/counsel/internal/model"
	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
)

var _ = Describe("ApplyGuardrails", func() {
	const laborContext = "[Article 77] Saudi Labor Law: Compensation for termination without a valid reason."

	DescribeTable("outcome guarantees are hedged",
		func(text string) {
			res := brain.ApplyGuardrails(text, brain.GuardrailInput{Intent: model.IntentCaseAnalysis})

			Expect(res.OutcomeRewritten).To(BeTrue())
			Expect(strings.ToLower(res.Text)).NotTo(ContainSubstring("will definitely win"))
			Expect(res.Text).NotTo(ContainSubstring("100%"))
		},
		Entry("scenario sentence", "You will definitely win the case 100%."),
		Entry("guaranteed outcome", "We guarantee a favorable judgment."),
		Entry("cannot lose", "With these documents you cannot lose."),
		Entry("success rate", "Your chance of success is 100%."),
		Entry("client will prevail", "Your client will prevail at trial."),
		Entry("guaranteed to win", "You are guaranteed to win the case."),
		Entry("court will rule for you", "The court will rule in your favor."),
		Entry("certain win", "Winning this case is certain."),
		Entry("Arabic settled in your favour", "القضية محسومة لصالحك."),
	)

	It("leaves uncertain outcomes alone", func() {
		text := "The outcome is not certain. If the court rules in your favor, costs may be recovered."
		res := brain.ApplyGuardrails(text, brain.GuardrailInput{Intent: model.IntentCaseAnalysis})

		Expect(res.OutcomeRewritten).To(BeFalse())
		Expect(res.Text).To(Equal(text))
	})

	DescribeTable("legal claims without research context are replaced",
		func(text string) {
			res := brain.ApplyGuardrails(text, brain.GuardrailInput{Intent: model.IntentLegalResearch, Topic: "notice periods"})

			Expect(res.HallucinationFlagged).To(BeTrue())
			Expect(res.Text).To(Equal("No specific legal text was found regarding notice periods."))
		},
		Entry("named law", "The Labor Law requires two months notice."),
		Entry("under a jurisdiction's law", "Under Saudi law, the employer must give notice."),
		Entry("by law", "By law, notice must be given in writing."),
	)

	It("hedges Arabic guarantees in Arabic", func() {
		res := brain.ApplyGuardrails("ستكسب القضية بكل تأكيد.", brain.GuardrailInput{})

		Expect(res.OutcomeRewritten).To(BeTrue())
		Expect(res.Text).NotTo(ContainSubstring("ستكسب"))
		Expect(res.Text).To(ContainSubstring("محامٍ مرخص"))
	})

	It("rewrites only the offending sentence", func() {
		res := brain.ApplyGuardrails("The lease ends in May. You will win this case.\nRent is due monthly.", brain.GuardrailInput{})

		Expect(res.Text).To(HavePrefix("The lease ends in May. Based on the provided context"))
		Expect(res.Text).To(HaveSuffix("attorney.\nRent is due monthly."))
	})

	It("leaves ordinary contract guarantees alone", func() {
		text := "The Tenant shall provide a bank guarantee of 10,000 SAR. The guarantee is returned at the end of the term."
		res := brain.ApplyGuardrails(text, brain.GuardrailInput{Intent: model.IntentContractDraft})

		Expect(res.OutcomeRewritten).To(BeFalse())
		Expect(res.Text).To(Equal(text))
	})

	It("keeps citations found in the research context", func() {
		text := "Under Article 77, the employee is entitled to compensation."
		res := brain.ApplyGuardrails(text, brain.GuardrailInput{ResearchContext: laborContext, Topic: "termination"})

		Expect(res.HallucinationFlagged).To(BeFalse())
		Expect(res.Text).To(Equal(text))
	})

	It("matches Arabic and English citations of the same article", func() {
		res := brain.ApplyGuardrails("تنص المادة ٧٧ على التعويض.", brain.GuardrailInput{ResearchContext: laborContext})

		Expect(res.HallucinationFlagged).To(BeFalse())
	})

	It("replaces citations missing from the research context", func() {
		text := "Article 77 covers compensation. Article 80 allows dismissal without notice."
		res := brain.ApplyGuardrails(text, brain.GuardrailInput{ResearchContext: laborContext, Topic: "dismissal without notice"})

		Expect(res.HallucinationFlagged).To(BeTrue())
		Expect(res.Text).To(Equal("Article 77 covers compensation. No specific legal text was found regarding dismissal without notice."))
	})

	It("replaces fabricated precedents", func() {
		res := brain.ApplyGuardrails("As held in Smith v. Jones, the claim fails.", brain.GuardrailInput{ResearchContext: laborContext})

		Expect(res.HallucinationFlagged).To(BeTrue())
		Expect(res.Text).To(ContainSubstring("No specific legal text was found regarding this matter."))
	})

	It("rewrites vague legal claims when there is no research context", func() {
		res := brain.ApplyGuardrails("According to the law, the employer must pay double wages.", brain.GuardrailInput{
			Intent: model.IntentLegalResearch,
			Topic:  "overtime pay",
		})

		Expect(res.HallucinationFlagged).To(BeTrue())
		Expect(strings.ToLower(res.Text)).To(ContainSubstring("no specific legal text was found regarding overtime pay"))
	})

	It("rewrites Arabic vague claims in Arabic", func() {
		res := brain.ApplyGuardrails("وفقاً للنظام، يحق لك التعويض.", brain.GuardrailInput{Intent: model.IntentGeneral})

		Expect(res.HallucinationFlagged).To(BeTrue())
		Expect(res.Text).To(ContainSubstring("لم يتم العثور على نص نظامي محدد بشأن هذا الموضوع"))
	})

	It("keeps vague claims when research context exists", func() {
		text := "According to the law, compensation is due."
		res := brain.ApplyGuardrails(text, brain.GuardrailInput{ResearchContext: laborContext})

		Expect(res.HallucinationFlagged).To(BeFalse())
		Expect(res.Text).To(Equal(text))
	})

	It("ignores a contract's own clause numbers", func() {
		text := "Termination follows the notice period in Clause 5. Disputes are settled according to the law of the Kingdom."
		res := brain.ApplyGuardrails(text, brain.GuardrailInput{Intent: model.IntentContractDraft})

		Expect(res.HallucinationFlagged).To(BeFalse())
		Expect(res.Text).To(Equal(text))
	})

	It("still checks statutory citations inside contracts", func() {
		res := brain.ApplyGuardrails("Under Article 12 of the Civil Transactions Law, the deposit is refundable.", brain.GuardrailInput{
			Intent: model.IntentContractDraft,
			Topic:  "Residential Lease",
		})

		Expect(res.HallucinationFlagged).To(BeTrue())
		Expect(res.Text).To(Equal("No specific legal text was found regarding Residential Lease."))
	})

	It("collapses consecutive identical rewrites", func() {
		res := brain.ApplyGuardrails("Article 10 applies. Article 11 applies too. The parties agree.", brain.GuardrailInput{Topic: "x"})

		Expect(strings.Count(res.Text, "No specific legal text was found regarding x.")).To(Equal(1))
		Expect(res.Text).To(HaveSuffix("The parties agree."))
	})

	It("keeps list markers on rewritten lines", func() {
		res := brain.ApplyGuardrails("Options:\n1. You will win for sure.\n2. Settle early.", brain.GuardrailInput{})

		Expect(res.Text).To(ContainSubstring("\n1. Based on the provided context"))
		Expect(res.Text).To(HaveSuffix("\n2. Settle early."))
	})

	It("does not treat abbreviations as sentence ends", func() {
		text := "See Art. 77 of the Labor Law for details."
		res := brain.ApplyGuardrails(text, brain.GuardrailInput{ResearchContext: laborContext})

		Expect(res.HallucinationFlagged).To(BeFalse())
		Expect(res.Text).To(Equal(text))
	})
})

var _ = Describe("EnsureDisclaimer", func() {
	const disclaimer = brain.DefaultDisclaimer

	It("appends the disclaimer once", func() {
		out, appended := brain.EnsureDisclaimer("Body text.", disclaimer)

		Expect(appended).To(BeTrue())
		Expect(out).To(Equal("Body text.\n\n" + disclaimer))
	})

	It("does not duplicate a disclaimer already at the end", func() {
		out, appended := brain.EnsureDisclaimer("Body text.\n\n"+disclaimer+"\n", disclaimer)

		Expect(appended).To(BeFalse())
		Expect(strings.Count(out, disclaimer)).To(Equal(1))
		Expect(out).To(HaveSuffix(disclaimer))
	})

	It("moves a disclaimer from the middle to the end", func() {
		out, appended := brain.EnsureDisclaimer(disclaimer+"\nBody text.", disclaimer)

		Expect(appended).To(BeTrue())
		Expect(strings.Count(out, disclaimer)).To(Equal(1))
		Expect(out).To(Equal("Body text.\n\n" + disclaimer))
	})

	It("returns just the disclaimer for empty text", func() {
		out, _ := brain.EnsureDisclaimer("   ", disclaimer)
		Expect(out).To(Equal(disclaimer))
	})
})
