package repository

import (
	"fmt"
	"os"
	"path/filepath"

	"FinPeer/internal/domain/models"

	"github.com/parquet-go/parquet-go"
)

// ParquetRow is one company of a bucket in columnar form. Absent ratios are null.
type ParquetRow struct {
	Exchange        string   `parquet:"exchange"`
	Industry        string   `parquet:"industry"`
	Code            string   `parquet:"code"`
	Price           *float64 `parquet:"price,optional"`
	MarketCap       *float64 `parquet:"mkt_cap,optional"`
	EnterpriseValue *float64 `parquet:"ev,optional"`
	Revenue         *float64 `parquet:"revenue,optional"`
	DividendYield   *float64 `parquet:"div_yield,optional"`
	DebtEquity      *float64 `parquet:"debt_equity,optional"`
	PriceSales      *float64 `parquet:"p_s,optional"`
	EVEBITDA        *float64 `parquet:"ev_ebitda,optional"`
	EVEBIT          *float64 `parquet:"ev_ebit,optional"`
	PriceBook       *float64 `parquet:"p_b,optional"`
	PriceTangible   *float64 `parquet:"p_tb,optional"`
	TrailingPE      *float64 `parquet:"trailing_pe,optional"`
	ForwardPE       *float64 `parquet:"forward_pe,optional"`
	PEG3yr          *float64 `parquet:"peg_3yr,optional"`
	PriceCFO        *float64 `parquet:"p_cfo,optional"`
	PriceFCF        *float64 `parquet:"p_fcf,optional"`
	PriceDividend   *float64 `parquet:"p_div,optional"`
	PriceCash       *float64 `parquet:"p_cash,optional"`
	PriceNetCash    *float64 `parquet:"p_ncash,optional"`
	PriceNetNet     *float64 `parquet:"p_nn,optional"`
	InterestCov     *float64 `parquet:"interest_cov,optional"`
	ServiceCov      *float64 `parquet:"service_cov,optional"`
	AssetCov        *float64 `parquet:"asset_cov,optional"`
}

// ToParquetRows flattens a bucket population.
func ToParquetRows(key models.BucketKey, entries []models.CompanyEntry) []ParquetRow {
	rows := make([]ParquetRow, 0, len(entries))
	for _, e := range entries {
		r := e.Ratios
		rows = append(rows, ParquetRow{
			Exchange:        key.Exchange,
			Industry:        key.Industry,
			Code:            e.Code,
			Price:           r.Get(models.RatioPrice).Ptr(),
			MarketCap:       r.Get(models.RatioMarketCap).Ptr(),
			EnterpriseValue: r.Get(models.RatioEnterpriseValue).Ptr(),
			Revenue:         r.Get(models.RatioRevenue).Ptr(),
			DividendYield:   r.Get(models.RatioDividendYield).Ptr(),
			DebtEquity:      r.Get(models.RatioDebtEquity).Ptr(),
			PriceSales:      r.Get(models.RatioPriceSales).Ptr(),
			EVEBITDA:        r.Get(models.RatioEVEBITDA).Ptr(),
			EVEBIT:          r.Get(models.RatioEVEBIT).Ptr(),
			PriceBook:       r.Get(models.RatioPriceBook).Ptr(),
			PriceTangible:   r.Get(models.RatioPriceTangible).Ptr(),
			TrailingPE:      r.Get(models.RatioTrailingPE).Ptr(),
			ForwardPE:       r.Get(models.RatioForwardPE).Ptr(),
			PEG3yr:          r.Get(models.RatioPEG3yr).Ptr(),
			PriceCFO:        r.Get(models.RatioPriceCFO).Ptr(),
			PriceFCF:        r.Get(models.RatioPriceFCF).Ptr(),
			PriceDividend:   r.Get(models.RatioPriceDividend).Ptr(),
			PriceCash:       r.Get(models.RatioPriceCash).Ptr(),
			PriceNetCash:    r.Get(models.RatioPriceNetCash).Ptr(),
			PriceNetNet:     r.Get(models.RatioPriceNetNet).Ptr(),
			InterestCov:     r.Get(models.RatioInterestCov).Ptr(),
			ServiceCov:      r.Get(models.RatioServiceCov).Ptr(),
			AssetCov:        r.Get(models.RatioAssetCov).Ptr(),
		})
	}
	return rows
}

// ExportParquet writes the bucket population to path.
func ExportParquet(path string, key models.BucketKey, entries []models.CompanyEntry) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("create export directory: %w", err)
	}
	if err := parquet.WriteFile(path, ToParquetRows(key, entries)); err != nil {
		return fmt.Errorf("write parquet %s: %w", path, err)
	}
	return nil
}

// ReadParquet loads rows written by ExportParquet.
func ReadParquet(path string) ([]ParquetRow, error) {
	rows, err := parquet.ReadFile[ParquetRow](path)
	if err != nil {
		return nil, fmt.Errorf("read parquet %s: %w", path, err)
	}
	return rows, nil
}
