package config

var CategoryWeights = map[string]int{
	"🕯️ Information": 0,
	"📢 Utilities":    10,
	"🎲 Gameplay":     20,
	"💬 Chat":         35,
	"⚙️ Settings":    50,
	"🛡️ Moderation":  55,
	"🛠️ Maintenance": 60,
}
