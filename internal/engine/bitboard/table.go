package bitboard

// 치환표. 항상 덮어쓰기, 키 전체를 저장해서 충돌 오판 없음.
type entry struct {
	key uint64
	val int8
}

type table struct {
	entries []entry
}

const entrySize = 16

func newTable(sizeMB int) *table {
	if sizeMB <= 0 {
		sizeMB = defaultTableMB
	}
	n := sizeMB * 1024 * 1024 / entrySize
	if n < 1024 {
		n = 1024
	}
	return &table{entries: make([]entry, n)}
}

func (t *table) reset() {
	clear(t.entries)
}

func (t *table) put(key uint64, val int8) {
	e := &t.entries[key%uint64(len(t.entries))]
	e.key = key
	e.val = val
}

// get returns 0 when the key is absent.
func (t *table) get(key uint64) int8 {
	e := t.entries[key%uint64(len(t.entries))]
	if e.key != key {
		return 0
	}
	return e.val
}
