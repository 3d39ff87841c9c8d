package llm

import "strings"

// DefaultSystemPrompt is used until a system_prompt setting replaces it.
const DefaultSystemPrompt = `คุณคือ NT AI ONE ผู้ช่วยตอบคำถามจากข้อมูลในตาราง
- ตอบเป็นภาษาไทยอย่างสุภาพ กระชับ และตรงประเด็น
- ใช้เฉพาะข้อมูลที่เกี่ยวข้องที่ให้มาเท่านั้น ห้ามแต่งข้อมูลขึ้นเอง
- หากข้อมูลไม่เพียงพอ ให้แจ้งผู้ใช้ตรง ๆ ว่าไม่พบข้อมูล
- เมื่ออ้างอิงข้อมูล ให้ระบุชื่อคอลัมน์และค่าที่เกี่ยวข้อง`

// PromptInput holds the pieces of a completion prompt.
type PromptInput struct {
	System   string
	Context  string
	Question string
	Previous string
}

// BuildPrompt renders the prompt sent to the LLM. An empty System falls
// back to DefaultSystemPrompt.
func BuildPrompt(in PromptInput) string {
	system := in.System
	if strings.TrimSpace(system) == "" {
		system = DefaultSystemPrompt
	}

	var b strings.Builder
	b.WriteString(system)
	if in.Previous != "" {
		b.WriteString("\n\nบทสนทนาก่อนหน้า: ")
		b.WriteString(in.Previous)
	}
	b.WriteString("\n\nข้อมูลที่เกี่ยวข้อง:\n")
	b.WriteString(in.Context)
	b.WriteString("\n\nคำถาม: ")
	b.WriteString(in.Question)
	b.WriteString("\n\nคำตอบ:")
	return b.String()
}
