package fields

// Company is the layout the company extraction prompt asks the model for.
var Company = NewSchema(
	Field("company_name", "Company Name"),
	Header("Company Address:"),
	Field("street", "- Street"),
	Field("city", "- City"),
	Field("county", "- County"),
	Field("state", "- State"),
	Field("country", "- Country"),
	Field("zip", "- ZIP"),
	Field("revenue", "Company Revenue"),
	Field("headcount", "Company Headcount"),
	Field("industry", "Company Industry"),
	Field("naics_code", "NAICS Code"),
	Field("sic_code", "SIC Code"),
	Field("website", "Company Website"),
	Field("website_status", "Company Website Status"),
	Field("description", "Company Description"),
	Field("phone", "Company Phone"),
	Field("is_headquarter", "Headquarter Identification"),
)

// Contact is one ranked contact block; ranking responses repeat it per contact.
var Contact = NewSchema(
	Field("name", "Name"),
	Field("individual_id", "Individual ID"),
	Field("primary_title", "Primary Title"),
	Field("management_level", "Management Level"),
	Field("email_address", "Email Address"),
	Field("best_freemail", "Best Freemail"),
	Field("phone_number", "Phone Number"),
	Field("linkedin_url", "LinkedIn URL"),
	Field("company_id", "Company ID"),
	Field("reason", "Reason"),
	Field("info_count", "Info Count"),
	Field("contact_rank", "Contact Rank"),
	Field("confidence_score", "Confidence Score"),
)
