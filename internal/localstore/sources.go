package localstore

import "medbrand/searchservice/internal/domain"

// officialImportSources catalogs the regulatory datasets the database manager
// offers for import. Descriptors only; fetching and parsing each format is
// done by the operator's tooling before records reach BulkInsert.
var officialImportSources = []domain.ImportSource{
	{
		Name:        "RxNorm",
		Country:     "United States",
		URL:         "https://www.nlm.nih.gov/research/umls/rxnorm",
		Format:      "Various",
		Description: "Standardized nomenclature for clinical drugs",
		Active:      true,
	},
	{
		Name:        "OpenFDA",
		Country:     "United States",
		URL:         "https://open.fda.gov/",
		Format:      "JSON",
		Description: "Adverse event reports, drug labels, and more",
		Active:      true,
	},
	{
		Name:        "EMA",
		Country:     "European Union",
		URL:         "https://www.ema.europa.eu/en/medicines/download-medicine-data",
		Format:      "XML/JSON",
		Description: "European Medicines Agency authorized products",
		Active:      true,
	},
	{
		Name:        "Health Canada DPD",
		Country:     "Canada",
		URL:         "https://www.canada.ca/en/health-canada/services/drugs-health-products/drug-products/drug-product-database.html",
		Format:      "HTML/Data Files",
		Description: "Health Canada's Drug Product Database",
		Active:      true,
	},
	{
		Name:        "Orange Book",
		Country:     "United States",
		URL:         "https://www.fda.gov/drugs/informationondrugs/ucm129662.htm",
		Format:      "PDF/Data Files",
		Description: "FDA's Approved Drug Products with Therapeutic Equivalence Evaluations",
		Active:      true,
	},
	{
		Name:        "WHO Model List",
		Country:     "Global",
		URL:         "https://www.who.int/medicines/publications/essentialmedicines/en/",
		Format:      "PDF",
		Description: "WHO's Model List of Essential Medicines",
		Active:      true,
	},
	{
		Name:        "UK MHRA Database",
		Country:     "United Kingdom",
		URL:         "https://products.mhra.gov.uk/",
		Format:      "JSON/API",
		Description: "UK Medicines and Healthcare products Regulatory Agency",
		Active:      true,
	},
	{
		Name:        "German BfArM Database",
		Country:     "Germany",
		URL:         "https://www.bfarm.de/SharedDocs/Downloads/DE/Arzneimittel/Pharmakovigilanz/gelbeListe.html",
		Format:      "CSV/XML",
		Description: "German Federal Institute for Drugs and Medical Devices",
		Active:      true,
	},
	{
		Name:        "French ANSM Database",
		Country:     "France",
		URL:         "https://base-donnees-publique.medicaments.gouv.fr/telechargement.php",
		Format:      "CSV",
		Description: "French National Agency for Medicines and Health Products Safety",
		Active:      true,
	},
	{
		Name:        "Australia TGA",
		Country:     "Australia",
		URL:         "https://www.tga.gov.au/resources/artg",
		Format:      "Excel/CSV",
		Description: "Australian Register of Therapeutic Goods",
		Active:      true,
	},
}

// ImportSources returns the import source catalog.
func ImportSources() []domain.ImportSource {
	sources := make([]domain.ImportSource, len(officialImportSources))
	copy(sources, officialImportSources)
	return sources
}
