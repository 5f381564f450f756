package analysis

// Prompt уходит вместе с картинкой во внешние vision-модели.
const Prompt = `Analyze this image for pollution and generate actionable environmental awareness tips:
Return STRICT JSON with the following fields:
{
  "pollutionTypes": ["air" | "water" | "land"],   // only the kinds visible on the photo, may be empty
  "riskLevel": "low" | "medium" | "high",
  "confidence": integer 0..100,
  "recommendations": [string],                    // short actionable tips
  "summary": string                               // one or two sentences
}`
