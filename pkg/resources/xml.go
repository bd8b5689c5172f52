package resources

import (
	"encoding/xml"
	"fmt"
	"path/filepath"
)

// domainXMLDoc is a deliberately partial view of a libvirt domain XML
// document: just enough structure to read and rewrite the fields spec.md
// §4.3 requires (name, uuid, disk source, network interface), leaving
// every other element (cpu, memory, devices the caller configured)
// untouched by round-tripping it through xml.Name-tagged passthrough
// nodes where we don't otherwise care about the content.
type domainXMLDoc struct {
	XMLName xml.Name      `xml:"domain"`
	Type    string        `xml:"type,attr"`
	Name    string        `xml:"name"`
	UUID    string        `xml:"uuid,omitempty"`
	Devices domainDevices `xml:"devices"`
	Other   []passthroughXML `xml:",any"`
}

// passthroughXML carries an element this package does not model through a
// parse/render round trip: its name, attributes and raw inner XML.
type passthroughXML struct {
	XMLName xml.Name
	Attrs   []xml.Attr `xml:",any,attr"`
	Inner   string     `xml:",innerxml"`
}

type domainDevices struct {
	Disks      []diskXML      `xml:"disk"`
	Interfaces []interfaceXML `xml:"interface"`
	Other      []passthroughXML `xml:",any"`
}

type diskXML struct {
	Type   string        `xml:"type,attr"`
	Device string        `xml:"device,attr"`
	Source *diskSourceXML `xml:"source"`
	Other  []passthroughXML `xml:",any"`
}

type diskSourceXML struct {
	File string `xml:"file,attr"`
}

type interfaceXML struct {
	Type   string              `xml:"type,attr"`
	Source *interfaceSourceXML `xml:"source"`
	MAC    *interfaceMACXML    `xml:"mac"`
}

type interfaceSourceXML struct {
	Network string `xml:"network,attr,omitempty"`
}

type interfaceMACXML struct {
	Address string `xml:"address,attr"`
}

// BuildDomainXML sets the name, uuid, disk source and (if networkName is
// non-empty) network interface of baseXML, a domain definition the caller
// loaded from DomainConfig.ConfigurationPath, matching the upstream's
// domain_xml: it fills in the fields QEMUResources owns and leaves
// everything else (cpu, memory, boot order) as the operator wrote it.
// Attributes of <domain> other than type, and the children of <interface>
// elements other than <mac> and a source network, are not carried over.
func BuildDomainXML(identifier, baseXML, diskPath, networkName string) (string, error) {
	var doc domainXMLDoc
	if err := xml.Unmarshal([]byte(baseXML), &doc); err != nil {
		return "", fmt.Errorf("failed to parse domain configuration: %w", err)
	}

	doc.Name = identifier
	doc.UUID = identifier

	source := &diskSourceXML{File: diskPath}
	if len(doc.Devices.Disks) == 0 {
		doc.Devices.Disks = []diskXML{{Type: "file", Device: "disk", Source: source}}
	} else {
		doc.Devices.Disks[0].Type = "file"
		doc.Devices.Disks[0].Device = "disk"
		doc.Devices.Disks[0].Source = source
	}

	if networkName != "" {
		iface := interfaceXML{Type: "network", Source: &interfaceSourceXML{Network: networkName}}
		replaced := false
		for i, existing := range doc.Devices.Interfaces {
			if existing.Type == "network" {
				doc.Devices.Interfaces[i] = iface
				replaced = true
				break
			}
		}
		if !replaced {
			doc.Devices.Interfaces = append(doc.Devices.Interfaces, iface)
		}
	}

	out, err := xml.MarshalIndent(doc, "", "  ")
	if err != nil {
		return "", fmt.Errorf("failed to render domain XML: %w", err)
	}
	return string(out), nil
}

type poolXML struct {
	XMLName xml.Name     `xml:"pool"`
	Type    string       `xml:"type,attr"`
	Name    string       `xml:"name"`
	UUID    string       `xml:"uuid,omitempty"`
	Target  poolTargetXML `xml:"target"`
}

type poolTargetXML struct {
	Path string `xml:"path"`
}

// BasePoolXML defines a directory-backed storage pool named after the
// directory it wraps, for a disk image's containing directory (the
// upstream's BASE_POOL_CONFIG). No driver in this package calls it: clone
// mode fails when the image is not already in a libvirt pool.
func BasePoolXML(name, path string) string {
	doc := poolXML{Type: "dir", Name: name, Target: poolTargetXML{Path: path}}
	out, _ := xml.MarshalIndent(doc, "", "  ")
	return string(out)
}

// ClonePoolXML defines the dedicated per-environment storage pool a
// disk.clone configuration stages its cloned disk image into.
func ClonePoolXML(identifier, path string) string {
	doc := poolXML{Type: "dir", Name: identifier, UUID: identifier, Target: poolTargetXML{Path: path}}
	out, _ := xml.MarshalIndent(doc, "", "  ")
	return string(out)
}

// PoolPath extracts the target/path element from a storage pool's XML
// description.
func PoolPath(poolXMLText string) (string, error) {
	var doc poolXML
	if err := xml.Unmarshal([]byte(poolXMLText), &doc); err != nil {
		return "", fmt.Errorf("failed to parse storage pool XML: %w", err)
	}
	return doc.Target.Path, nil
}

type volumeXML struct {
	XMLName  xml.Name        `xml:"volume"`
	Type     string          `xml:"type,attr"`
	Name     string          `xml:"name"`
	UUID     string          `xml:"uuid,omitempty"`
	Capacity *volumeCapacity `xml:"capacity"`
	Target   volumeTargetXML `xml:"target"`
	Backing  *backingStoreXML `xml:"backingStore"`
}

type volumeCapacity struct {
	Unit  string `xml:"unit,attr,omitempty"`
	Value string `xml:",chardata"`
}

type volumeTargetXML struct {
	Path        string           `xml:"path"`
	Permissions *volumePermsXML  `xml:"permissions"`
	Format      volumeFormatXML  `xml:"format"`
}

type volumePermsXML struct {
	Mode string `xml:"mode"`
}

type volumeFormatXML struct {
	Type string `xml:"type,attr"`
}

type backingStoreXML struct {
	Path   string          `xml:"path"`
	Format volumeFormatXML `xml:"format"`
}

// CloneVolumeXML builds the XML for cloning baseVolumeXML (the original
// disk image's own volume description, as reported by libvirt) into
// identifier.qcow2 inside poolPath. cow requests a copy-on-write clone
// backed by the original image instead of a full copy, matching the
// upstream's disk_xml/BACKING_STORE_DEFAULT_CONFIG.
func CloneVolumeXML(identifier, poolPath, baseVolumeXML string, cow bool) (string, error) {
	var base volumeXML
	if err := xml.Unmarshal([]byte(baseVolumeXML), &base); err != nil {
		return "", fmt.Errorf("failed to parse base volume XML: %w", err)
	}

	targetPath := filepath.Join(poolPath, identifier+".qcow2")
	doc := volumeXML{
		Type:     "file",
		Name:     identifier,
		UUID:     identifier,
		Capacity: base.Capacity,
		Target: volumeTargetXML{
			Path:        targetPath,
			Permissions: &volumePermsXML{Mode: "0644"},
			Format:      volumeFormatXML{Type: "qcow2"},
		},
	}

	if cow {
		doc.Backing = &backingStoreXML{
			Path:   base.Target.Path,
			Format: volumeFormatXML{Type: "qcow2"},
		}
	}

	out, err := xml.MarshalIndent(doc, "", "  ")
	if err != nil {
		return "", fmt.Errorf("failed to render volume XML: %w", err)
	}
	return string(out), nil
}

// VolumeTargetPath extracts the target/path element from a storage
// volume's XML description.
func VolumeTargetPath(volumeXMLText string) (string, error) {
	var doc volumeXML
	if err := xml.Unmarshal([]byte(volumeXMLText), &doc); err != nil {
		return "", fmt.Errorf("failed to parse volume XML: %w", err)
	}
	return doc.Target.Path, nil
}
