package reason

import (
	"fmt"
	"strings"

	"github.com/sokoflow/sokoflow/runtime/workflow"
)

// taskBriefs holds the per-task instructions handed to the model as part of
// the system prompt. Each brief assumes the common preamble and the context
// block rendered by SystemPrompt.
var taskBriefs = map[workflow.TaskType]string{
	workflow.TaskLogisticPlanning: `Your current task is logistics planning. Arrange delivery of the product to the customer:
- Collect the customer's delivery address if it is still "` + addressUnknown + `".
- Once the address is known, contact the logistics partner with the pickup and drop-off details and obtain a delivery cost and time estimate.
- Relay the estimate to the customer and confirm acceptance.
- The task is finished when the customer has accepted the delivery arrangement and the logistics partner has confirmed the pickup.`,

	workflow.TaskPaymentVerification: `Your current task is payment verification. Confirm the customer's payment for the product:
- Share the bank details with the customer if they have not received them.
- Ask the vendor to confirm that the transfer has arrived.
- The task is finished when the vendor confirms receipt of payment, or definitively reports that no payment arrived.`,

	workflow.TaskCustomerFeedback: `Your current task is collecting feedback. Ask the customer how their purchase of the product went:
- Ask one open question about their experience, then at most one follow-up.
- Thank them for their answer.
- The task is finished when the customer has given their feedback or declined to.`,

	workflow.TaskProductUnavailable: `Your current task is an availability check. The customer asked about a product:
- Ask the vendor whether the product is currently available and at what price.
- Relay the vendor's answer to the customer.
- The task is finished when the customer has received a definitive answer.`,
}

// contextLabels maps context keys to the labels used in the prompt's context
// block, in render order.
var contextLabels = []struct {
	key   string
	label string
}{
	{KeyProduct, "Product"},
	{KeyPrice, "Price"},
	{KeyCustomerID, "Customer id"},
	{KeyBusinessID, "Business id"},
	{KeyLogisticID, "Logistics"},
	{KeyCustomerAddress, "Customer address"},
	{KeyBankDetails, "Bank details"},
}

// SystemPrompt renders the full system prompt for a reasoning call: the
// shared preamble, the task brief, the context block, and the output
// contract. values comes from BuildContext.
func SystemPrompt(task workflow.TaskType, values map[string]string) (string, error) {
	brief, ok := taskBriefs[task]
	if !ok {
		return "", fmt.Errorf("%w: %q", workflow.ErrUnknownTaskType, task)
	}
	var b strings.Builder
	b.WriteString(`You are a commerce assistant coordinating a conversation between a customer, a vendor, and a logistics partner. You speak on behalf of the business. Every message you produce is addressed to exactly one of: customer, vendor, logistics.

`)
	b.WriteString(brief)
	b.WriteString("\n\nContext:\n")
	for _, cl := range contextLabels {
		if v, ok := values[cl.key]; ok && v != "" {
			fmt.Fprintf(&b, "- %s: %s\n", cl.label, v)
		}
	}
	b.WriteString(`
Respond with a single JSON object and nothing else:
{"message": "<text to send>", "sender": "agent", "recipient": "customer"|"vendor"|"logistics", "logistic_details": "<optional delivery details>", "finished": true|false}

Set "finished" to true only when the task's objective is fully achieved. Keep messages short and conversational.`)
	return b.String(), nil
}

// FlattenTranscript renders a workflow transcript as a single user turn for
// providers that do not accept named multi-party messages. Each line is
// prefixed with the author.
func FlattenTranscript(transcript []workflow.Message) string {
	var b strings.Builder
	for _, m := range transcript {
		fmt.Fprintf(&b, "[%s] %s\n", m.Name, m.Content)
	}
	return b.String()
}
