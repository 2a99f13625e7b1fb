package llm

const recordPromptHeader = `Extract the following information from this academic paper text. Return ONLY valid JSON with no additional text or markdown formatting.

Paper text:
`

const recordPromptFooter = `

Return JSON in this exact format:
{
  "title": "paper title",
  "authors": ["Author One", "Author Two"],
  "year": 2024,
  "publication_type": "journal-article",
  "journal": "Journal Name",
  "volume": "12",
  "issue": "3",
  "pages": "45-67",
  "publisher": "Publisher Name",
  "doi": "10.xxxx/xxxxx",
  "url": "https://doi.org/10.xxxx/xxxxx",
  "abstract_text": "abstract text",
  "keywords": ["keyword1", "keyword2", "keyword3"]
}

If you cannot find a field, use null. The title field is required (use empty string if unknown). Do not include any text before or after the JSON.`

// BuildRecordPrompt embeds the excerpt verbatim in the extraction prompt.
func BuildRecordPrompt(excerpt string) string {
	return recordPromptHeader + excerpt + recordPromptFooter
}
