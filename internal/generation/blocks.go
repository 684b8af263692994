package generation

// Идентификаторы блоков, которые ставит генератор
const (
	AirBlockID   uint32 = iota // 0
	StoneBlockID               // 1
	GrassBlockID               // 2
	WaterBlockID               // 3
	SandBlockID                // 4
	DirtBlockID                // 5

	// Декоративные блоки (начиная с 100)
	FlowerBlockID uint32 = 100
	LogBlockID    uint32 = 101
	LeavesBlockID uint32 = 102
	CactusBlockID uint32 = 103

	// Руды (начиная с 300)
	CoalOreBlockID uint32 = 300
	IronOreBlockID uint32 = 301
)

var blockNames = map[uint32]string{
	AirBlockID:     "air",
	StoneBlockID:   "stone",
	GrassBlockID:   "grass",
	WaterBlockID:   "water",
	SandBlockID:    "sand",
	DirtBlockID:    "dirt",
	FlowerBlockID:  "flower",
	LogBlockID:     "log",
	LeavesBlockID:  "leaves",
	CactusBlockID:  "cactus",
	CoalOreBlockID: "coal_ore",
	IronOreBlockID: "iron_ore",
}

// BlockName имя блока для отладки
func BlockName(id uint32) string {
	if name, ok := blockNames[id]; ok {
		return name
	}
	return "unknown"
}
