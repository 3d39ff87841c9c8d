package assistant

import (
	"strings"

	"github.com/spherical-ai/spherical/libs/sheet-assistant/internal/retrieval"
)

// HelpEntry answers admin questions containing any of its keys.
type HelpEntry struct {
	Topic  string
	Keys   []string
	Answer string
}

// HelpDesk is a static table of admin answers. Entries are tried in order.
type HelpDesk struct {
	entries  []HelpEntry
	fallback string
}

// NewHelpDesk creates a HelpDesk from entries and a fallback answer.
func NewHelpDesk(entries []HelpEntry, fallback string) *HelpDesk {
	return &HelpDesk{entries: entries, fallback: fallback}
}

// DefaultHelpDesk returns the built-in bilingual help table.
func DefaultHelpDesk() *HelpDesk {
	return NewHelpDesk(defaultHelpEntries, defaultHelpFallback)
}

// Match returns the first entry whose key occurs in question.
func (h *HelpDesk) Match(question string) (HelpEntry, bool) {
	q := retrieval.Normalize(question)
	for _, e := range h.entries {
		for _, k := range e.Keys {
			if strings.Contains(q, k) {
				return e, true
			}
		}
	}
	return HelpEntry{}, false
}

// Answer returns the matching answer, or the fallback.
func (h *HelpDesk) Answer(question string) string {
	if e, ok := h.Match(question); ok {
		return e.Answer
	}
	return h.fallback
}

// Topics lists the entry topics in order.
func (h *HelpDesk) Topics() []string {
	topics := make([]string, len(h.entries))
	for i, e := range h.entries {
		topics[i] = e.Topic
	}
	return topics
}

const defaultHelpFallback = `ฉันพร้อมช่วยคุณ! พิมพ์ "ช่วย" เพื่อดูหัวข้อที่ถามได้ หรือ "คู่มือ" เพื่อดูคู่มือทั้งหมด`

var defaultHelpEntries = []HelpEntry{
	{
		Topic: "settings",
		Keys:  []string{"การตั้งค่า", "ตั้งค่า", "settings", "setting"},
		Answer: `ขั้นตอนการตั้งค่าระบบ:
1. ไปที่ Settings (POST /api/v1/settings หรือคำสั่ง settings set)
2. ใส่ system_prompt ที่ต้องการ
3. ใส่ sheet_id ของ Google Sheet
4. ใส่ line_token หรือ telegram_api ถ้ามี
5. บันทึกแล้วทดสอบการเชื่อมต่อ`,
	},
	{
		Topic: "google sheet",
		Keys:  []string{"google sheet", "googlesheet", "ชีต", "sheet"},
		Answer: `การใช้งาน Google Sheets:
1. เตรียม Google Sheet ที่เปิดให้ทุกคนที่มีลิงก์ดูได้
2. คัดลอก Sheet ID จาก URL (ส่วนระหว่าง /d/ และ /edit)
3. บันทึกเป็น sheet_id ในการตั้งค่า
4. ทดสอบด้วยคำถาม เช่น "ขอดูข้อมูล 5 แถว"`,
	},
	{
		Topic: "usage",
		Keys:  []string{"การใช้งาน", "วิธีใช้", "usage", "how to use"},
		Answer: `วิธีใช้งาน:
- "ขอดูข้อมูล 5 แถว" แสดงแถวแรกของตาราง
- "ค้นหาสมชาย" ค้นหาแถวที่ตรงกับคำค้น
- "วิเคราะห์ข้อมูล" หรือ "ค่าเฉลี่ยอายุ" สรุปสถิติของตาราง
ยิ่งถามชัดเจน ยิ่งได้คำตอบตรงจุด`,
	},
	{
		Topic: "troubleshooting",
		Keys:  []string{"ปัญหา", "แก้ไข", "error", "troubleshoot", "problem"},
		Answer: `แก้ไขปัญหาพบบ่อย:
- ตอบว่าเข้าถึงข้อมูลไม่ได้: ตรวจสอบ sheet_id และสิทธิ์การแชร์ของชีต
- ข้อมูลไม่อัปเดต: สั่งรีเฟรชข้อมูล (POST /api/v1/refresh)
- AI ไม่ตอบ: ตรวจสอบ CHAT_API_URL และ CHAT_MODEL แล้วทดสอบการเชื่อมต่อ`,
	},
	{
		Topic: "manual",
		Keys:  []string{"คู่มือ", "manual", "guide"},
		Answer: `คู่มือการใช้งาน NT AI ONE:
การเริ่มต้น: ตั้งค่า system_prompt และ sheet_id แล้วทดสอบการเชื่อมต่อ
การตั้งค่า: system_prompt คือคำสั่งให้ AI ทำงาน, sheet_id คือรหัส Google Sheet, line_token และ telegram_api ใช้กับช่องทางแจ้งเตือน
การใช้งาน Chat: พิมพ์คำถามเพื่อค้นหาข้อมูลในตาราง AI จะตอบจากข้อมูลที่พบ`,
	},
	{
		Topic:  "help",
		Keys:   []string{"ช่วย", "help"},
		Answer: `คุณสามารถถามเกี่ยวกับ: การตั้งค่าระบบ, การใช้งาน Google Sheets, การใช้งาน Chat, การแก้ไขปัญหา หรือพิมพ์ "คู่มือ" เพื่อดูคู่มือทั้งหมด`,
	},
}
