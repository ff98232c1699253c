package model

import "time"

// CompanyInput is the profile submitted for analysis. All four fields are
// required and must not be blank.
type CompanyInput struct {
	Name               string `json:"name" validate:"required,notblank"`
	WebsiteURL         string `json:"website_url" validate:"required,notblank"`
	ProductDescription string `json:"product_description" validate:"required,notblank"`
	MarketCategory     string `json:"market_category" validate:"required,notblank"`
}

// AnalyzeCompanyRequest is the body of POST /api/analyze-company.
type AnalyzeCompanyRequest struct {
	CompanyInput
	UserName string `json:"user_name,omitempty"`
}

// Company is the stored company record.
type Company struct {
	ID                 string    `json:"id"`
	Name               string    `json:"name"`
	WebsiteURL         string    `json:"website_url"`
	ProductDescription string    `json:"product_description"`
	MarketCategory     string    `json:"market_category"`
	AnalysisStatus     JobStatus `json:"analysis_status"`
	ScrapedData        string    `json:"scraped_data,omitempty"`
	UserID             string    `json:"user_id"`
	CreatedAt          time.Time `json:"createdAt"`
	UpdatedAt          time.Time `json:"updatedAt"`
}

// Input returns the submitted profile of a stored company.
func (c *Company) Input() CompanyInput {
	return CompanyInput{
		Name:               c.Name,
		WebsiteURL:         c.WebsiteURL,
		ProductDescription: c.ProductDescription,
		MarketCategory:     c.MarketCategory,
	}
}
