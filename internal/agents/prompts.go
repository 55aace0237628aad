package agents

import "github.com/kalambet/asave/internal/llm"

const (
	extractionSystem = "You are an expert AAOIFI standard analyst focused on accurate information extraction."
	suggestionSystem = "You are an AI assistant specialized in drafting and enhancing AAOIFI Financial Accounting Standards with a focus on clarity, Shari'ah alignment, and practicality."
	validationSystem = "You are a meticulous AAOIFI standards validation expert. Your role is to critically assess proposals for Shari'ah compliance and inter-standard consistency based on provided rules and contexts."
	minerSystem      = "You are an expert AI assistant specializing in meticulously analyzing AAOIFI Shari'ah Standards. Your primary task is to accurately identify explicit Shari'ah rules, prohibitions, and mandatory conditions, and then format them into a structured JSON output. Focus on actionable directives."
)

// Sampling temperatures per agent role.
const (
	extractionTemperature = 0.2
	suggestionTemperature = 0.5
	validationTemperature = 0.1
	minerTemperature      = 0.15
)

var definitionsPrompt = llm.MustTemplate("extract_definitions", `From the following text snippet from an AAOIFI standard, extract all explicitly defined terms and their corresponding definitions.
Present the output as a JSON list, where each item is an object with "term" and "definition" keys.
If no definitions are found, return an empty list.

Text:
{standard_text_chunk}

JSON Output:`)

var ambiguitiesPrompt = llm.MustTemplate("find_ambiguities", `Review the following text snippet from an AAOIFI standard for potential ambiguities,
unclear phrasing, or sections that might lead to misinterpretation in practical application.
List each identified ambiguity with a brief explanation. If none, state "No significant ambiguities found in this chunk."

Text:
{standard_text_chunk}

Ambiguities Found:
1. [Ambiguity 1]: [Explanation of why it is ambiguous]
2. [Ambiguity 2]: [Explanation of why it is ambiguous]
...
(If none, state: No significant ambiguities found in this chunk.)`)

var keyClausesPrompt = llm.MustTemplate("identify_key_clauses", `Use the following excerpts to answer the question at the end. If the excerpts do not contain the answer, say that you don't know rather than making one up.

{context}

Question: What are the key clauses, rules, or requirements related to '{topic}' in {standard_name}? Summarize them concisely.
Helpful Answer:`)

var clarificationPrompt = llm.MustTemplate("generate_clarification", `The following paragraph from an AAOIFI FAS has been identified with an ambiguity:
Original Paragraph:
"{original_text}"

Identified Ambiguity by another agent:
"{identified_ambiguity}"

Relevant context from the Financial Accounting Standard (FAS) itself:
"{fas_context}"

Relevant context from related AAOIFI Shari'ah Standards (SS):
"{ss_context}"

Task:
1. Draft a revised version of the Original Paragraph that addresses the identified ambiguity and improves its clarity and precision.
2. The revised version MUST keep the original intent of the standard as far as possible.
3. The revised version MUST remain compliant with Shari'ah principles as reflected in the provided SS context.
4. Give detailed reasoning for your changes: how they address the ambiguity, how they align with the cited FAS or SS context, and how Shari'ah alignment is kept or improved.

Output Format:
Revised Paragraph:
[Your suggested text for the revised paragraph]

Reasoning & Shari'ah Alignment:
[Your detailed explanation, including specific references to FAS/SS context if applicable]`)

var enhancementPrompt = llm.MustTemplate("propose_enhancement", `A potential gap or area for enhancement has been identified in {fas_name}:
Gap Description: "{gap_description}"

Relevant context from {fas_name} (if any part is being amended):
"{fas_context}"

Relevant context from related AAOIFI Shari'ah Standards (SS):
"{ss_context}"

Relevant context from comparative external standards (e.g., IFRS), if provided:
"{external_standard_context}"

Task:
1. Propose a new clause, or an amendment to an existing clause if FAS context is provided, for {fas_name} that addresses this gap.
2. The proposal must be clear, practical for Islamic financial institutions to implement, and rigorously aligned with the Shari'ah principles in the SS context.
3. Explain your reasoning in detail: how the proposal addresses the gap and how it aligns with the cited FAS, SS or external standard contexts.

Output Format:
Proposed Clause/Amendment for {fas_name}:
[Your suggested text for the new or amended clause]

Reasoning & Source Alignment:
[Your detailed explanation, citing specific contexts]`)

var compliancePrompt = llm.MustTemplate("validate_shariah_compliance", `Task: Perform a Shari'ah Compliance Validation.

Proposed Text for an AAOIFI Financial Accounting Standard:
"{proposed_text}"
(This proposal concerns: {specific_aspect_under_review})

Assessment against Explicit Shari'ah Rules:
{explicit_rules_assessment}

Relevant General Shari'ah Principles/Clauses from AAOIFI Shari'ah Standards (retrieved context):
"{shariah_standard_context}"

Overall Assessment Request:
Based on ALL the information above (explicit rule checks and general SS context), give an overall Shari'ah compliance assessment of the "Proposed Text".
1. State your overall assessment: [Compliant / Potential Conflict / Needs Further Scholarly Review / Insufficient Information for Assessment].
2. Give a detailed explanation. Where you identify potential conflicts or areas needing review, be specific, reference the rule or principle from the explicit checks or the SS context, and explain the concern. If compliant, explain how it aligns.

Shari'ah Compliance Assessment:
[Your Overall Assessment Status]

Detailed Explanation & Justification:
[Your Detailed Explanation]`)

var consistencyPrompt = llm.MustTemplate("validate_consistency", `Task: Perform an Inter-Standard Consistency Check.

A proposed amendment for AAOIFI Standard {fas_name} is:
"{proposed_text}"

Potentially relevant context from OTHER AAOIFI Financial Accounting Standards (for checking terminology, definitions, or conflicting treatments):
"{other_fas_context}"

Assessment Request:
1. Does the terminology in the "Proposed Text" align with AAOIFI glossaries or with definitions used in other FAS (based on the provided context or general knowledge of AAOIFI standards)?
2. Does the "Proposed Text" introduce potential contradictions with principles or treatments established in other AAOIFI FAS?
Highlight any specific consistency or coherence concerns.

Consistency Assessment:
[Consistent / Potential Inconsistency / Needs Further Review for Consistency]

Detailed Explanation:
[Your Detailed Explanation]`)

var candidatesPrompt = llm.MustTemplate("extract_rule_candidates", `From the following text chunk of the AAOIFI Shari'ah Standard '{standard_name}', identify and list ALL sentences or clauses that clearly state an explicit Shari'ah rule, prohibition, permission, or mandatory condition.
- Focus on actionable directives (e.g., "It is permissible...", "It is not permitted...", "It is a requirement that...", "must be...", "shall not...").
- Exclude general descriptions, historical context, explanations of wisdom, or examples unless they directly illustrate the scope of an explicit rule.
- Each rule should be a direct quote, or a very concise paraphrase where a quote cannot stand alone as a rule.
- If one sentence contains several distinct rules, list them separately where possible.

Text Chunk from {standard_name}:
---
{text_chunk}
---

Identified Explicit Rules (list each on a new line, prefixed with '- '. If no explicit rules are found in this chunk, state "No explicit rules found in this chunk"):
-`)

var normalizePrompt = llm.MustTemplate("normalize_rule", `Given the following explicit Shari'ah rule extracted from the AAOIFI standard '{standard_name}'
(Original context hint: part of a chunk starting with: '{original_chunk_ref_snippet}...')

Extracted Rule Text:
"{rule_text}"

Your Task: Format this rule into a JSON object with the following keys:
1.  "rule_id": A concise, unique, and descriptive ID based on the standard and rule content. Use the format: '{generated_rule_id_prefix}_[CONCISE_KEY_ASPECT_OF_RULE_IN_UPPERCASE]'.
2.  "standard_ref": The name of the standard, e.g., "SS {standard_number}: {standard_topic_name}". Add a placeholder like "[Clause X.Y]" if the exact clause is not evident from the text.
3.  "principle_keywords": A JSON list of 3-5 relevant lowercase keywords that capture the essence of this rule for searchability (e.g., ["ijarah", "permissible use", "shari'ah compliance"]).
4.  "description": A clear, concise, and accurate restatement of the rule text. This is the primary human-readable rule statement and must capture its full meaning.
5.  "validation_query_template": A question template for checking whether a proposed accounting clause conflicts with THIS Shari'ah rule. The template MUST include '{{clause_text}}' and '{{rule_description}}' as placeholders. Example: "Does the proposed accounting treatment in '{{clause_text}}' align with the Shari'ah rule: '{{rule_description}}'? Explain discrepancies."

Make sure the "description" fully reflects the "Extracted Rule Text".
Provide ONLY the single JSON object as your output, with no other text before or after.

JSON Output:`)
