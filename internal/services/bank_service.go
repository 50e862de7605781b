package services

import (
	"encoding/base64"
	"encoding/json"
	"net/http"
	"os"
	"path/filepath"
)

// PartnerBank is a clearing partner that external withdrawals can settle to.
type PartnerBank struct {
	Code     string `json:"code"`
	Name     string `json:"name"`
	LogoData string `json:"logoData"`
}

const (
	logosDir        = "./static/bank-logos"
	fallbackBankSVG = `<svg xmlns="http://www.w3.org/2000/svg" viewBox="0 0 200 200"><rect width="200" height="200" fill="#f0f0f0"/><path d="M100 60c-22.1 0-40 17.9-40 40s17.9 40 40 40 40-17.9 40-40-17.9-40-40-40zm0 65c-13.8 0-25-11.2-25-25s11.2-25 25-25 25 11.2 25 25-11.2 25-25 25z" fill="#999"/><text x="100" y="170" text-anchor="middle" font-family="Arial" font-size="14" fill="#666">BANK</text></svg>`
)

var bankLogos = map[string]string{
	"01": "kcb.svg",
	"02": "standard-chartered.svg",
	"03": "absa.svg",
	"07": "ncba.svg",
	"10": "prime.svg",
	"11": "cooperative.svg",
	"12": "national.svg",
	"14": "oriental.svg",
	"16": "citibank.svg",
	"18": "middle-east.svg",
	"19": "bank-of-africa.svg",
	"23": "consolidated.svg",
	"25": "credit.svg",
	"31": "stanbic.svg",
	"35": "abc.svg",
	"43": "ecobank.svg",
	"49": "spire.svg",
	"50": "paramount.svg",
	"51": "kingdom.svg",
	"53": "guaranty.svg",
	"54": "victoria.svg",
	"55": "guardian.svg",
	"57": "im.svg",
	"61": "housing-finance.svg",
	"63": "dtb.svg",
	"66": "sidian.svg",
	"68": "equity.svg",
	"70": "family.svg",
	"72": "gulf-african.svg",
	"74": "first-community.svg",
	"76": "uba.svg",
	"78": "kwft.svg",
	"89": "stima-sacco.svg",
}

var partnerBanks = []PartnerBank{
	{Code: "01", Name: "Kenya Commercial Bank"},
	{Code: "02", Name: "Standard Chartered Bank Kenya"},
	{Code: "03", Name: "Absa Bank Kenya"},
	{Code: "07", Name: "NCBA Bank Kenya"},
	{Code: "10", Name: "Prime Bank"},
	{Code: "11", Name: "Co-operative Bank of Kenya"},
	{Code: "12", Name: "National Bank of Kenya"},
	{Code: "14", Name: "Oriental Commercial Bank"},
	{Code: "16", Name: "Citibank N.A. Kenya"},
	{Code: "18", Name: "Middle East Bank Kenya"},
	{Code: "19", Name: "Bank of Africa Kenya"},
	{Code: "23", Name: "Consolidated Bank of Kenya"},
	{Code: "25", Name: "Credit Bank"},
	{Code: "31", Name: "Stanbic Bank Kenya"},
	{Code: "35", Name: "African Banking Corporation"},
	{Code: "43", Name: "Ecobank Kenya"},
	{Code: "49", Name: "Spire Bank"},
	{Code: "50", Name: "Paramount Bank"},
	{Code: "51", Name: "Kingdom Bank"},
	{Code: "53", Name: "Guaranty Trust Bank Kenya"},
	{Code: "54", Name: "Victoria Commercial Bank"},
	{Code: "55", Name: "Guardian Bank"},
	{Code: "57", Name: "I&M Bank"},
	{Code: "61", Name: "Housing Finance Company"},
	{Code: "63", Name: "Diamond Trust Bank Kenya"},
	{Code: "66", Name: "Sidian Bank"},
	{Code: "68", Name: "Equity Bank Kenya"},
	{Code: "70", Name: "Family Bank"},
	{Code: "72", Name: "Gulf African Bank"},
	{Code: "74", Name: "First Community Bank"},
	{Code: "76", Name: "UBA Kenya Bank"},
	{Code: "78", Name: "Kenya Women Microfinance Bank"},
	{Code: "89", Name: "Stima Sacco"},
}

type BankService struct{}

func NewBankService() *BankService {
	return &BankService{}
}

// GetAllBanks lists the clearing partners for external payouts
// @Summary List partner banks
// @Description Get the directory of banks external withdrawals can settle to
// @Tags banks
// @Produce json
// @Success 200 {array} PartnerBank
// @Router /banks [get]
func (bs *BankService) GetAllBanks(w http.ResponseWriter, r *http.Request) {
	banks := make([]PartnerBank, len(partnerBanks))
	copy(banks, partnerBanks)

	for i := range banks {
		banks[i].LogoData = bs.LoadLogo(banks[i].Code)
	}

	w.Header().Set("Content-Type", "application/json")
	w.Header().Set("Cache-Control", "public, max-age=86400")
	json.NewEncoder(w).Encode(banks)
}

func (bs *BankService) LoadLogo(code string) string {
	filename, ok := bankLogos[code]
	if !ok {
		return "data:image/svg+xml;base64," + base64.StdEncoding.EncodeToString([]byte(fallbackBankSVG))
	}

	path := filepath.Join(logosDir, filename)
	if data, err := os.ReadFile(path); err == nil {
		return "data:image/svg+xml;base64," + base64.StdEncoding.EncodeToString(data)
	}

	return "data:image/svg+xml;base64," + base64.StdEncoding.EncodeToString([]byte(fallbackBankSVG))
}
