package synth

import "fmt"

// SystemInstruction is sent as the system message of every request.
const SystemInstruction = "You are a helpful assistant that answers questions based on forum post content. " +
	"You will provide references to the forum posts in your answer."

// ContextIntro precedes the assembled posts in the user message.
const ContextIntro = "Here are some relevant forum posts that might help answer your question:\n\n"

const userTemplate = `You are an AI assistant helping users find information from forum posts.
Based on the following forum posts, please answer the user's question. If the posts don't contain enough information to answer the question, say so.

Forum Posts Context:
%s

User Question: %s

Please provide a helpful answer based on the forum posts above. If you reference specific posts, mention the author and date.`

// UserPrompt renders the user message for question over the assembled posts.
func UserPrompt(question, posts string) string {
	return fmt.Sprintf(userTemplate, ContextIntro+posts, question)
}
