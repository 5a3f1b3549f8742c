// internal/discovery/usb/database.go
package usb

import (
	"github.com/google/gousb"

	"printer-bridge/internal/model"
)

// EpsonVendorID is the USB vendor id of Seiko Epson
const EpsonVendorID gousb.ID = 0x04B8

// DeviceDatabase contains known USB printers for identification
type DeviceDatabase struct {
	vendors map[gousb.ID]*VendorInfo
}

// VendorInfo contains vendor-specific information
type VendorInfo struct {
	Name     string
	products map[gousb.ID]*ProductInfo
}

// ProductInfo describes a known printer model
type ProductInfo struct {
	Model  string
	Series model.DeviceSeries
}

// NewDeviceDatabase creates and initializes the device database
func NewDeviceDatabase() *DeviceDatabase {
	db := &DeviceDatabase{
		vendors: make(map[gousb.ID]*VendorInfo),
	}
	db.initializeDatabase()
	return db
}

func (db *DeviceDatabase) initializeDatabase() {
	epson := &VendorInfo{
		Name:     "Seiko Epson Corporation",
		products: make(map[gousb.ID]*ProductInfo),
	}

	epson.products[0x0202] = &ProductInfo{Model: "TM-T88IV", Series: model.SeriesTMT88}
	epson.products[0x0203] = &ProductInfo{Model: "TM-T88V", Series: model.SeriesTMT88}
	epson.products[0x0214] = &ProductInfo{Model: "TM-T88VI", Series: model.SeriesTMT88}
	epson.products[0x0215] = &ProductInfo{Model: "TM-T20III", Series: model.SeriesTMT20}
	epson.products[0x0216] = &ProductInfo{Model: "TM-T82III", Series: model.SeriesTMT82}
	epson.products[0x0217] = &ProductInfo{Model: "TM-m30", Series: model.SeriesTMM30}
	epson.products[0x0E27] = &ProductInfo{Model: "TM-m30II", Series: model.SeriesTMM30II}
	epson.products[0x0E28] = &ProductInfo{Model: "TM-m30III", Series: model.SeriesTMM30III}
	epson.products[0x0E2A] = &ProductInfo{Model: "TM-T88VII", Series: model.SeriesTMT88VII}

	db.vendors[EpsonVendorID] = epson
}

// IsKnownVendor checks if a vendor ID is in the database
func (db *DeviceDatabase) IsKnownVendor(vendorID gousb.ID) bool {
	_, exists := db.vendors[vendorID]
	return exists
}

// GetVendorInfo retrieves vendor information
func (db *DeviceDatabase) GetVendorInfo(vendorID gousb.ID) *VendorInfo {
	return db.vendors[vendorID]
}

// GetProductInfo retrieves product information from vendor
func (vi *VendorInfo) GetProductInfo(productID gousb.ID) *ProductInfo {
	return vi.products[productID]
}

// Lookup returns the product entry for vid:pid, if known
func (db *DeviceDatabase) Lookup(vendorID, productID gousb.ID) *ProductInfo {
	vendor := db.vendors[vendorID]
	if vendor == nil {
		return nil
	}
	return vendor.GetProductInfo(productID)
}
