package extractor

// CompanyChunk asks for the company profile found in one chunk of a filing.
// Args: chunk number, chunk text.
var CompanyChunk = Template{
	Name:        "company_chunk",
	MaxTokens:   1000,
	Temperature: 0.2,
	Prompt: `Extract everything this text says about the company it describes. This is chunk %d of the document, so details may be partial.

Gather:
1. Company name
2. Full address (street, city, county, state, country, ZIP)
3. Revenue
4. Headcount
5. Industry
6. NAICS code
7. SIC code
8. Website
9. Website status (active, inactive, etc.)
10. Short description
11. Phone number
12. Whether this is the headquarters (Yes or No)

Report partial details when that is all the chunk has. Leave a field blank when the chunk says nothing about it.

Answer in exactly this layout:

Company Name:
Company Address:
- Street:
- City:
- County:
- State:
- Country:
- ZIP:
Company Revenue:
Company Headcount:
Company Industry:
NAICS Code:
SIC Code:
Company Website:
Company Website Status:
Company Description:
Company Phone:
Headquarter Identification:

Text chunk:
%s`,
}

// ContactRanking picks the five best contacts of one company from a batch of
// contact rows. Args: JSON array of rows.
var ContactRanking = Template{
	Name:        "contact_ranking",
	MaxTokens:   4000,
	Temperature: 0.7,
	Prompt: `Select the top 5 contacts at this company for a lodging management software sales team to approach. The product covers hotel booking and management, billing, spend control and support for businesses in construction, transportation and logistics, oil and gas, retail, healthcare and similar industries.

Prefer people whose titles make them responsible for travel, lodging, procurement, logistics, facilities or operations, and senior people who decide on those purchases.

The rows carry INDIVIDUAL_ID, NAME, LTE_FLAG, PRIMARY_TITLE, MANAGEMENT_LEVEL, EMAIL_ADDRESS, BEST_FREEMAIL, MOBILE_PHONE, PHONE_NUMBER, LINKEDIN_URL, COMPANY_ID and CONFIDENCE_SCORE.

Rules:
1. Never pick the same NAME and COMPANY_ID twice.
2. Rank by relevance of the title first, then by higher CONFIDENCE_SCORE.
3. When several people hold the same C-level role, keep only the one with the highest CONFIDENCE_SCORE.
4. Rank the chosen contacts 1 to 5. No rank may exceed 5.
5. Always return five contacts when the data allows it. To fill the list, fall back on management level (c-level, vp-level, director, manager, non manager) and then confidence score. Skip titles containing Former, Retired, Resigned, Past, Independent, Self Employed, Unemployed, Freelance, Advisor, Consultant, Personal Assistant, PA, Chief of Staff, Office of, to the, Secretary or Office.
6. For every selected contact write exactly:

Name: [contact name]
Individual ID: [INDIVIDUAL_ID]
Primary Title: [title]
Management Level: [management level]
Email Address: [work email]
Best Freemail: [personal email]
Phone Number: [phone]
LinkedIn URL: [profile url]
Company ID: [COMPANY_ID]
Reason: [why this contact was selected]
Info Count: [how many of EMAIL_ADDRESS, BEST_FREEMAIL, MOBILE_PHONE, PHONE_NUMBER, LINKEDIN_URL are filled]
Contact Rank: [1 to 5]
Confidence Score: [CONFIDENCE_SCORE]

Separate contacts with one blank line.

Data:
%s`,
}

// Bio writes a professional biography of at least a minimum length.
// Args: min length, name, location, company, position, previous company,
// previous position, degree, institution, social url, attempt, profile id.
var Bio = Template{
	Name:        "bio",
	MaxTokens:   4000,
	Temperature: 0.7,
	Prompt: `Write a professional biography for the contact below.

Guidelines:
1. Open with the contact's full name.
2. Give the current title and company, joined with "at", "with", "of" or "from".
3. Add the location with "based in" when it is known.
4. Describe the role with "responsible for" where it fits.
5. Mention the previous position when it is known.
6. Mention the bachelor's or master's degree and institution when given.

Keep it detailed and specific. The bio must be at least %[1]d characters long.

Name: %[2]s
Location: %[3]s
Current Company: %[4]s
Current Position: %[5]s
Previous Company: %[6]s
Previous Position: %[7]s
Degree: %[8]s
Institution: %[9]s
Social URL: %[10]s

This is attempt %[11]d. The bio must be at least %[1]d characters long.

Return only this JSON object, with no other text:
{
  "name": "%[2]s",
  "profile_id": "%[12]s",
  "bio": "GENERATED_BIO"
}`,
}

// BioEvaluation rates a generated bio. Args: name, bio.
var BioEvaluation = Template{
	Name:        "bio_evaluation",
	MaxTokens:   4000,
	Temperature: 0,
	Prompt: `Rate this bio of %[1]s from 1 to 10 for quality and accuracy, where 1 is very poor and 10 is excellent, and briefly explain the rating.

Bio: %[2]s

Return only this JSON object, with no other text:
{
  "name": "%[1]s",
  "rating": NUMERIC_RATING,
  "explanation": "YOUR_EXPLANATION"
}`,
}

// Funding pulls funding-round details out of an article. Args: article text.
var Funding = Template{
	Name:        "funding",
	MaxTokens:   4000,
	Temperature: 0.7,
	Prompt: `Extract the funding information from this article and return it as JSON.

%s

Use these keys:
- fund_receiver: company receiving the money
- investors: list of investor names
- date: date of the article
- round_type: type of funding round
- amount_raised: amount raised in the round
- summary: short summary of the news
- scoop_type: type of news, e.g. Funding
- topics: list of relevant topics
- department: business department or category

Return only the JSON object.`,
}
