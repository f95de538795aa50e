package internal

import "time"

type SemanticType string

const (
	FieldParcelID            SemanticType = "parcelId"
	FieldPowerToSaleDate     SemanticType = "powerToSaleDate"
	FieldTaxArea             SemanticType = "taxArea"
	FieldLocation            SemanticType = "location"
	FieldDelinquentAmount    SemanticType = "delinquentAmount"
	FieldLandValue           SemanticType = "landValue"
	FieldImprovementValue    SemanticType = "improvementValue"
	FieldPropertyDescription SemanticType = "propertyDescription"
	FieldAddress             SemanticType = "address"
	FieldUnknown             SemanticType = "unknown"
)

// RawRow is one undecoded row: header -> cell text. Headers keeps the file order.
type RawRow struct {
	Headers []string
	Values  map[string]string
}

// Get returns the cell for header; absent and blank cells both report false.
func (r RawRow) Get(header string) (string, bool) {
	v, ok := r.Values[header]
	if !ok || v == "" {
		return "", false
	}
	return v, true
}

// ColumnMapping assigns each header of a batch one semantic type.
type ColumnMapping map[string]SemanticType

type TypedPropertyRecord struct {
	RowNumber           int                `json:"rowNumber"`
	ParcelID            *string            `json:"parcelId"`
	PowerToSaleDate     *time.Time         `json:"powerToSaleDate"`
	TaxArea             *string            `json:"taxArea"`
	Location            *string            `json:"location"`
	DelinquentAmount    *float64           `json:"delinquentAmount"`
	LandValue           *float64           `json:"landValue"`
	ImprovementValue    *float64           `json:"improvementValue"`
	PropertyDescription *string            `json:"propertyDescription"`
	Address             *string            `json:"address"`
	Extra               map[string]*string `json:"extra,omitempty"`
	// Unparsed lists fields whose cell had text that could not be coerced.
	Unparsed            []SemanticType     `json:"unparsed,omitempty"`
}

type ValidationReport struct {
	TotalRows       int      `json:"totalRows"`
	ValidRows       int      `json:"validRows"`
	MissingParcelID int      `json:"missingParcelId"`
	MissingAmounts  int      `json:"missingAmounts"`
	InvalidDates    int      `json:"invalidDates"`
	Issues          []string `json:"issues"`
	QualityScore    float64  `json:"qualityScore"`
}

type PropertyTypeClass string

const (
	TypeResidential PropertyTypeClass = "residential"
	TypeCommercial  PropertyTypeClass = "commercial"
	TypeRawLand     PropertyTypeClass = "raw_land"
	TypeMultiFamily PropertyTypeClass = "multi_family"
	TypeUnknown     PropertyTypeClass = "unknown"
)

type LocationQualityClass string

const (
	LocationHigh    LocationQualityClass = "high"
	LocationMedium  LocationQualityClass = "medium"
	LocationLow     LocationQualityClass = "low"
	LocationUnknown LocationQualityClass = "unknown"
)

type RiskLevel string

const (
	RiskLow    RiskLevel = "low"
	RiskMedium RiskLevel = "medium"
	RiskHigh   RiskLevel = "high"
)

type Recommendation struct {
	Type     string `json:"type"`
	Message  string `json:"message"`
	Priority string `json:"priority"`
}

type AnalyzedProperty struct {
	TypedPropertyRecord
	EquityRatio         float64              `json:"equityRatio"`
	DelinquencyAgeDays  int                  `json:"delinquencyAge"`
	PropertyType        PropertyTypeClass    `json:"propertyType"`
	LocationQuality     LocationQualityClass `json:"locationQuality"`
	Acreage             *float64             `json:"acreage"`
	InvestmentScore     int                  `json:"investmentScore"`
	RiskLevel           RiskLevel            `json:"riskLevel"`
	EstimatedRedemption float64              `json:"estimatedRedemption"`
	Recommendations     []Recommendation     `json:"recommendations"`
}

type ScoreDistribution struct {
	High   int `json:"high"`
	Medium int `json:"medium"`
	Low    int `json:"low"`
}

type Opportunity struct {
	ParcelID         *string  `json:"parcelId"`
	InvestmentScore  int      `json:"investmentScore"`
	EquityRatio      float64  `json:"equityRatio"`
	DelinquentAmount *float64 `json:"delinquentAmount"`
}

type PortfolioStats struct {
	TotalProperties    int                       `json:"totalProperties"`
	AverageScore       float64                   `json:"averageScore"`
	ScoreDistribution  ScoreDistribution         `json:"scoreDistribution"`
	PropertyTypes      map[PropertyTypeClass]int `json:"propertyTypes"`
	TotalValue         float64                   `json:"totalValue"`
	TotalDelinquent    float64                   `json:"totalDelinquent"`
	AverageEquityRatio float64                   `json:"averageEquityRatio"`
	TopOpportunities   []Opportunity             `json:"topOpportunities"`
}

type DatasetStatus string

const (
	DatasetProcessing DatasetStatus = "processing"
	DatasetCompleted  DatasetStatus = "completed"
	DatasetFailed     DatasetStatus = "failed"
)

type DatasetRow struct {
	ID                  int           `json:"id"`
	UID                 string        `json:"uid"`
	Filename            string        `json:"filename"`
	Source              string        `json:"source"`
	UploadDate          string        `json:"uploadDate"`
	TotalProperties     int           `json:"totalProperties"`
	ProcessedProperties int           `json:"processedProperties"`
	Status              DatasetStatus `json:"status"`

	// Mapping and Report are only loaded by single-dataset lookups.
	Mapping ColumnMapping     `json:"columnMapping,omitempty"`
	Report  *ValidationReport `json:"report,omitempty"`
}

// StoredProperty is an AnalyzedProperty as persisted, with its row id and owning dataset.
type StoredProperty struct {
	ID          int    `json:"id"`
	DatasetID   int    `json:"datasetId"`
	DatasetName string `json:"datasetName"`
	CreatedAt   string `json:"createdAt"`
	AnalyzedProperty
}

type WatchPriority string

const (
	PriorityLow    WatchPriority = "low"
	PriorityMedium WatchPriority = "medium"
	PriorityHigh   WatchPriority = "high"
)

type WatchlistEntry struct {
	PropertyID int           `json:"propertyId"`
	Notes      *string       `json:"notes"`
	Priority   WatchPriority `json:"priority"`
	CreatedAt  string        `json:"createdAt"`
}

type PropertyDetail struct {
	StoredProperty
	Watchlist          *WatchlistEntry `json:"watchlist"`
	IsWatchlisted      bool            `json:"isWatchlisted"`
	TotalPropertyValue float64         `json:"totalPropertyValue"`
	PotentialProfit    float64         `json:"potentialProfit"`
}

type WatchedProperty struct {
	StoredProperty
	Watchlist WatchlistEntry `json:"watchlist"`
}

type Pagination struct {
	Page  int `json:"page"`
	Limit int `json:"limit"`
	Total int `json:"total"`
	Pages int `json:"pages"`
}

type PropertyPage struct {
	Properties []StoredProperty `json:"properties"`
	Pagination Pagination       `json:"pagination"`
}

type EmailRow struct {
	ID         int
	Provider   string
	MessageID  string
	Subject    string
	Sender     string
	ReceivedAt string
	Hash       string
	Status     string
	RawRef     string
}

type FetchedMailMessage struct {
	Provider   string
	MessageID  string
	Subject    string
	From       string
	ReceivedAt string
	Raw        []byte
}

type DatasetSummary struct {
	TotalProperties       int     `json:"totalProperties"`
	AverageScore          float64 `json:"averageScore"`
	AverageEquityRatio    float64 `json:"averageEquityRatio"`
	TotalDelinquent       float64 `json:"totalDelinquent"`
	TotalPropertyValue    float64 `json:"totalPropertyValue"`
	AverageDelinquencyAge float64 `json:"averageDelinquencyAge"`
	HighScoreCount        int     `json:"highScoreCount"`
	MediumScoreCount      int     `json:"mediumScoreCount"`
	LowScoreCount         int     `json:"lowScoreCount"`
}

type TypeBreakdown struct {
	PropertyType PropertyTypeClass `json:"propertyType"`
	Count        int               `json:"count"`
	AverageScore float64           `json:"averageScore"`
}

// RangeCount is one chart bucket; AverageScore is only filled where the report asks for it.
type RangeCount struct {
	Range        string  `json:"range"`
	Count        int     `json:"count"`
	AverageScore float64 `json:"averageScore,omitempty"`
}

type PortfolioReport struct {
	Stats              DatasetSummary   `json:"stats"`
	PropertyTypes      []TypeBreakdown  `json:"propertyTypes"`
	ScoreDistribution  []RangeCount     `json:"scoreDistribution"`
	EquityDistribution []RangeCount     `json:"equityDistribution"`
	TopOpportunities   []StoredProperty `json:"topOpportunities"`
}

type TrendPoint struct {
	EquityRatio      float64           `json:"equityRatio"`
	InvestmentScore  int               `json:"investmentScore"`
	DelinquentAmount *float64          `json:"delinquentAmount"`
	PropertyType     PropertyTypeClass `json:"propertyType"`
}

type TrendsReport struct {
	Scatter            []TrendPoint `json:"scatterData"`
	AmountDistribution []RangeCount `json:"amountDistribution"`
}

type LocationStat struct {
	Location           string  `json:"location"`
	PropertyCount      int     `json:"propertyCount"`
	AverageScore       float64 `json:"averageScore"`
	AverageEquityRatio float64 `json:"averageEquityRatio"`
	TotalDelinquent    float64 `json:"totalDelinquent"`
	HighScoreCount     int     `json:"highScoreCount"`
}

type RiskBucket struct {
	RiskLevel             string  `json:"riskLevel"`
	Count                 int     `json:"count"`
	AverageEquityRatio    float64 `json:"averageEquityRatio"`
	AverageDelinquencyAge float64 `json:"averageDelinquencyAge"`
}

type RiskReport struct {
	Distribution    []RiskBucket     `json:"riskDistribution"`
	ApproachingSale []StoredProperty `json:"approachingSale"`
}
