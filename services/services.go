// Package services holds the small HTTP-side services that sit beside the
// dashboard: address QR codes and health reporting.
package services

import (
	"bytes"
	"fmt"
	"image/png"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/skip2/go-qrcode"

	"workhard-dashboard/dashboard"
	"workhard-dashboard/derive"
	"workhard-dashboard/models"
)

// QRCodeService renders EIP-681 payment links as PNG QR codes.
type QRCodeService struct {
	size int
}

// NewQRCodeService creates a new QR code service
func NewQRCodeService() *QRCodeService {
	return &QRCodeService{size: 256}
}

// PaymentURI builds the link encoded in the QR code. amount is in ether and
// optional.
func PaymentURI(address, amount string) (string, error) {
	if !common.IsHexAddress(address) {
		return "", fmt.Errorf("invalid address %q", address)
	}
	uri := "ethereum:" + common.HexToAddress(address).Hex()
	if amount = strings.TrimSpace(amount); amount != "" {
		wei, err := derive.ParseEther(amount)
		if err != nil {
			return "", fmt.Errorf("invalid amount %q: %w", amount, err)
		}
		uri += "?value=" + wei.String()
	}
	return uri, nil
}

// GenerateQRCode generates a QR code for given address and amount
func (s *QRCodeService) GenerateQRCode(address, amount string) ([]byte, error) {
	uri, err := PaymentURI(address, amount)
	if err != nil {
		return nil, err
	}
	qr, err := qrcode.New(uri, qrcode.Medium)
	if err != nil {
		return nil, fmt.Errorf("failed to generate QR code: %w", err)
	}

	buf := new(bytes.Buffer)
	if err := png.Encode(buf, qr.Image(s.size)); err != nil {
		return nil, fmt.Errorf("failed to encode QR code to PNG: %w", err)
	}
	return buf.Bytes(), nil
}

// HealthService reports the dashboard's view of the chain.
type HealthService struct {
	network func() dashboard.Network
}

func NewHealthService(network func() dashboard.Network) *HealthService {
	return &HealthService{network: network}
}

// GetHealthStatus is "starting" until the first block tick lands.
func (s *HealthService) GetHealthStatus() *models.HealthResponse {
	n := s.network()
	status := "healthy"
	if n.Height == 0 {
		status = "starting"
	}
	return &models.HealthResponse{
		Status:    status,
		Network:   n.Name,
		Height:    n.Height,
		CanSign:   n.CanSign,
		Timestamp: time.Now().Unix(),
	}
}
