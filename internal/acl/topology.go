package acl

import (
	"context"

	"github.com/smartly/bridge/internal/hub"
)

const (
	unassignedID       = "_unassigned"
	unassignedDeviceID = "_virtual"
)

// EntityNode is the leaf of the topology tree.
type EntityNode struct {
	EntityID string `json:"entity_id"`
	Domain   string `json:"domain"`
	Name     string `json:"name"`
	Icon     string `json:"icon,omitempty"`
	DeviceID string `json:"device_id"`
}

type DeviceNode struct {
	ID       string       `json:"id"`
	Entities []EntityNode `json:"entities"`
}

type AreaNode struct {
	ID      string       `json:"id"`
	Name    string       `json:"name,omitempty"`
	Devices []DeviceNode `json:"devices"`
}

type FloorNode struct {
	ID    string     `json:"id"`
	Name  string     `json:"name,omitempty"`
	Areas []AreaNode `json:"areas"`
}

// Topology is the build_structure output: the nested tree as the
// primary payload, plus flat projections with foreign keys.
type Topology struct {
	Floors   []FloorNode          `json:"floors"`
	Areas    []flatArea           `json:"areas"`
	Devices  []flatDevice         `json:"devices"`
	Entities []flatEntity         `json:"entities"`
}

type flatArea struct {
	ID      string `json:"id"`
	FloorID string `json:"floor_id"`
}

type flatDevice struct {
	ID     string `json:"id"`
	AreaID string `json:"area_id"`
}

type flatEntity struct {
	EntityID string `json:"entity_id"`
	DeviceID string `json:"device_id"`
}

var domainDefaultIcons = map[string]string{
	"switch":     "mdi:toggle-switch",
	"light":      "mdi:lightbulb",
	"cover":      "mdi:window-shutter",
	"climate":    "mdi:thermostat",
	"fan":        "mdi:fan",
	"lock":       "mdi:lock",
	"scene":      "mdi:palette",
	"script":     "mdi:script-text",
	"automation": "mdi:robot",
	"camera":     "mdi:cctv",
}

// resolveIcon applies a fixed precedence: user-set icon (carried on the
// descriptor's Icon field, which the registry already resolved against a
// user override) -> domain default -> empty.
func resolveIcon(e hub.EntityDescriptor) string {
	if e.Icon != "" {
		return e.Icon
	}
	if icon, ok := domainDefaultIcons[e.Domain]; ok {
		return icon
	}
	return ""
}

// BuildStructure assembles the topology tree for allowedEntities, applying
// the synthetic-placeholder fallbacks below.
func (a *ACL) BuildStructure(ctx context.Context, allowedEntities []hub.EntityDescriptor) Topology {
	type deviceKey struct{ floorID, areaID, deviceID string }

	floorOrder := []string{}
	floors := map[string]*FloorNode{}
	areaOrder := map[string][]string{} // floorID -> ordered areaIDs
	areas := map[string]*AreaNode{}    // areaID (scoped by floor via composite below) -> node
	deviceOrder := map[string][]string{}
	devices := map[string]*DeviceNode{}

	flatAreas := []flatArea{}
	flatDevices := []flatDevice{}
	flatEntities := []flatEntity{}
	seenArea := map[string]bool{}
	seenDevice := map[string]bool{}

	ensureFloor := func(floorID string) *FloorNode {
		if f, ok := floors[floorID]; ok {
			return f
		}
		name := ""
		if floorID != unassignedID {
			if rec, ok2 := a.registry.GetFloor(ctx, floorID); ok2 {
				name = rec.Name
			}
		}
		node := &FloorNode{ID: floorID, Name: name}
		floors[floorID] = node
		floorOrder = append(floorOrder, floorID)
		return node
	}

	ensureArea := func(floorID, areaID string) *AreaNode {
		key := floorID + "/" + areaID
		if ar, ok := areas[key]; ok {
			return ar
		}
		name := ""
		if areaID != unassignedID {
			if rec, ok2 := a.registry.GetArea(ctx, areaID); ok2 {
				name = rec.Name
			}
		}
		node := &AreaNode{ID: areaID, Name: name}
		areas[key] = node
		areaOrder[floorID] = append(areaOrder[floorID], key)
		if !seenArea[areaID] {
			seenArea[areaID] = true
			flatAreas = append(flatAreas, flatArea{ID: areaID, FloorID: floorID})
		}
		return node
	}

	ensureDevice := func(floorID, areaID, deviceID string) *DeviceNode {
		key := floorID + "/" + areaID + "/" + deviceID
		if d, ok := devices[key]; ok {
			return d
		}
		node := &DeviceNode{ID: deviceID}
		devices[key] = node
		deviceOrder[floorID+"/"+areaID] = append(deviceOrder[floorID+"/"+areaID], key)
		if !seenDevice[deviceID] {
			seenDevice[deviceID] = true
			flatDevices = append(flatDevices, flatDevice{ID: deviceID, AreaID: areaID})
		}
		return node
	}

	for _, e := range allowedEntities {
		floorID, areaID, deviceID := resolveLineage(ctx, a.registry, e)

		ensureFloor(floorID)
		ensureArea(floorID, areaID)
		dNode := ensureDevice(floorID, areaID, deviceID)

		dNode.Entities = append(dNode.Entities, EntityNode{
			EntityID: e.EntityID,
			Domain:   e.Domain,
			Name:     e.Name,
			Icon:     resolveIcon(e),
			DeviceID: deviceID,
		})
		flatEntities = append(flatEntities, flatEntity{EntityID: e.EntityID, DeviceID: deviceID})
	}

	floorsOut := make([]FloorNode, 0, len(floorOrder))
	for _, fid := range floorOrder {
		fn := *floors[fid]
		for _, akey := range areaOrder[fid] {
			an := *areas[akey]
			for _, dkey := range deviceOrder[fid+"/"+an.ID] {
				an.Devices = append(an.Devices, *devices[dkey])
			}
			fn.Areas = append(fn.Areas, an)
		}
		floorsOut = append(floorsOut, fn)
	}

	return Topology{
		Floors:   floorsOut,
		Areas:    flatAreas,
		Devices:  flatDevices,
		Entities: flatEntities,
	}
}

// resolveLineage walks entity -> device -> area -> floor, substituting the
// synthetic placeholders at whichever link is missing.
func resolveLineage(ctx context.Context, registry hub.Registry, e hub.EntityDescriptor) (floorID, areaID, deviceID string) {
	deviceID = e.DeviceID
	if deviceID == "" {
		return unassignedID, unassignedID, unassignedDeviceID
	}

	dev, ok := registry.GetDevice(ctx, deviceID)
	areaID = ""
	if ok {
		areaID = dev.AreaID
	}
	if areaID == "" {
		return unassignedID, unassignedID, deviceID
	}

	area, ok := registry.GetArea(ctx, areaID)
	floorID = ""
	if ok {
		floorID = area.FloorID
	}
	if floorID == "" {
		floorID = unassignedID
	}
	return floorID, areaID, deviceID
}
