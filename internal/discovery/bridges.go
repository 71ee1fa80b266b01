// internal/discovery/bridges.go
package discovery

import "strings"

// BridgeInfo identifies a USB-to-serial bridge chip
type BridgeInfo struct {
	Vendor string
	Chip   string
	// Generator is set for bridges FY-series generators are known to ship with
	Generator bool
}

// BridgeDatabase maps USB vendor/product IDs to known serial bridge chips
type BridgeDatabase struct {
	vendors map[string]map[string]*BridgeInfo
}

// NewBridgeDatabase creates and initializes the bridge database
func NewBridgeDatabase() *BridgeDatabase {
	db := &BridgeDatabase{
		vendors: make(map[string]map[string]*BridgeInfo),
	}
	db.initializeDatabase()
	return db
}

func (db *BridgeDatabase) initializeDatabase() {
	// WCH (0x1A86), used on FY6800/FY6900 boards
	db.Add("1a86", "7523", &BridgeInfo{Vendor: "QinHeng Electronics", Chip: "CH340", Generator: true})
	db.Add("1a86", "5523", &BridgeInfo{Vendor: "QinHeng Electronics", Chip: "CH341", Generator: true})
	db.Add("1a86", "55d4", &BridgeInfo{Vendor: "QinHeng Electronics", Chip: "CH9102"})

	// Silicon Labs (0x10C4)
	db.Add("10c4", "ea60", &BridgeInfo{Vendor: "Silicon Labs", Chip: "CP210x"})

	// FTDI (0x0403)
	db.Add("0403", "6001", &BridgeInfo{Vendor: "FTDI", Chip: "FT232R"})
	db.Add("0403", "6015", &BridgeInfo{Vendor: "FTDI", Chip: "FT231X"})

	// Prolific (0x067B)
	db.Add("067b", "2303", &BridgeInfo{Vendor: "Prolific", Chip: "PL2303"})
}

// Add registers a bridge. IDs are hex strings as reported by the OS enumerator.
func (db *BridgeDatabase) Add(vid, pid string, info *BridgeInfo) {
	vid, pid = normalizeID(vid), normalizeID(pid)
	products, ok := db.vendors[vid]
	if !ok {
		products = make(map[string]*BridgeInfo)
		db.vendors[vid] = products
	}
	products[pid] = info
}

// Lookup returns the bridge for a VID/PID pair
func (db *BridgeDatabase) Lookup(vid, pid string) (*BridgeInfo, bool) {
	products, ok := db.vendors[normalizeID(vid)]
	if !ok {
		return nil, false
	}
	info, ok := products[normalizeID(pid)]
	return info, ok
}

func normalizeID(id string) string {
	id = strings.ToLower(strings.TrimSpace(id))
	id = strings.TrimPrefix(id, "0x")
	for len(id) < 4 {
		id = "0" + id
	}
	return id
}
