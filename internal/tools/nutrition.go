package tools

import (
	"fmt"
	"log"
	"strings"

	"github.com/blevesearch/bleve"
)

// NutritionFact is one entry in the bundled facts table.
type NutritionFact struct {
	Food    string `json:"food"`
	Summary string `json:"summary"`
	Tags    string `json:"tags"`
}

// NutritionIndex answers free-text food queries from an in-memory index over
// a bundled facts table. Lookups never fail a turn; an empty or errored
// search degrades to a generic line.
type NutritionIndex struct {
	index  bleve.Index
	facts  map[string]NutritionFact
	logger *log.Logger
}

const nutritionFallback = "Aim for whole foods: lean protein, vegetables, whole grains, and plenty of water."

// NewNutritionIndex builds the in-memory index from the bundled table.
func NewNutritionIndex(logger *log.Logger) (*NutritionIndex, error) {
	if logger == nil {
		logger = log.New(log.Writer(), "[NUTRITION] ", log.LstdFlags)
	}
	index, err := bleve.NewMemOnly(bleve.NewIndexMapping())
	if err != nil {
		return nil, fmt.Errorf("nutrition index: %w", err)
	}
	n := &NutritionIndex{index: index, facts: make(map[string]NutritionFact, len(nutritionFacts)), logger: logger}
	for i, f := range nutritionFacts {
		id := fmt.Sprintf("nf-%d", i)
		n.facts[id] = f
		if err := index.Index(id, f); err != nil {
			return nil, fmt.Errorf("indexing %q: %w", f.Food, err)
		}
	}
	return n, nil
}

// Lookup returns up to k fact summaries relevant to the query text. On any
// failure it returns the generic fallback line.
func (n *NutritionIndex) Lookup(text string, k int) []string {
	if k <= 0 {
		k = 3
	}
	text = strings.TrimSpace(text)
	if text == "" {
		return []string{nutritionFallback}
	}
	query := bleve.NewQueryStringQuery(text)
	req := bleve.NewSearchRequestOptions(query, k, 0, false)
	res, err := n.index.Search(req)
	if err != nil {
		n.logger.Printf("nutrition lookup %q failed: %v", text, err)
		return []string{nutritionFallback}
	}
	var out []string
	for _, hit := range res.Hits {
		if f, ok := n.facts[hit.ID]; ok {
			out = append(out, fmt.Sprintf("%s: %s", f.Food, f.Summary))
		}
	}
	if len(out) == 0 {
		return []string{nutritionFallback}
	}
	return out
}

// nutritionFacts is the bundled table. Small on purpose; the lookup is a
// context enrichment, not a food database.
var nutritionFacts = []NutritionFact{
	{Food: "Chicken breast", Summary: "~31g protein per 100g, low fat; grill or bake rather than fry.", Tags: "protein poultry chicken"},
	{Food: "Salmon", Summary: "Rich in omega-3 and protein (~20g/100g); good twice a week.", Tags: "protein fish omega3 salmon"},
	{Food: "Lentils", Summary: "~9g plant protein and 8g fiber per 100g cooked; steady energy.", Tags: "protein legume fiber vegetarian lentils"},
	{Food: "Oats", Summary: "Slow-release carbs and beta-glucan fiber; solid breakfast base.", Tags: "carbs fiber breakfast oats oatmeal"},
	{Food: "Greek yogurt", Summary: "~10g protein per 100g plus probiotics; watch added sugar.", Tags: "protein dairy breakfast yogurt"},
	{Food: "Spinach", Summary: "Iron, magnesium and folate dense, nearly calorie free.", Tags: "vegetable iron greens spinach salad"},
	{Food: "Brown rice", Summary: "Whole-grain carbs with ~2x the fiber of white rice.", Tags: "carbs grain rice fiber"},
	{Food: "Eggs", Summary: "~6g complete protein each; choline supports recovery.", Tags: "protein breakfast eggs"},
	{Food: "Banana", Summary: "Quick carbs and potassium; good pre- or post-workout.", Tags: "fruit carbs potassium workout banana snack"},
	{Food: "Almonds", Summary: "Healthy fats, vitamin E and ~21g protein per 100g; portion-dense.", Tags: "fat protein nuts snack almonds"},
	{Food: "Quinoa", Summary: "Complete plant protein (~4g/100g cooked) and gluten free.", Tags: "protein grain gluten-free vegetarian quinoa"},
	{Food: "Sweet potato", Summary: "Complex carbs, beta-carotene and fiber; bake with skin on.", Tags: "carbs vegetable fiber potato"},
	{Food: "Tofu", Summary: "~8g plant protein per 100g; absorbs marinades well.", Tags: "protein soy vegetarian vegan tofu"},
	{Food: "Blueberries", Summary: "Antioxidant dense, low sugar for a fruit; easy on smoothies.", Tags: "fruit antioxidant snack berries blueberries"},
	{Food: "Cottage cheese", Summary: "Casein protein (~11g/100g) digests slowly; good evening snack.", Tags: "protein dairy evening cheese"},
	{Food: "Chickpeas", Summary: "Protein and fiber combo (~19g/100g dry); roast for crunch.", Tags: "protein legume fiber vegetarian chickpeas hummus"},
	{Food: "Avocado", Summary: "Monounsaturated fats and potassium; half a fruit is a portion.", Tags: "fat fruit avocado"},
	{Food: "Tuna", Summary: "Lean protein (~25g/100g canned in water); mind mercury, 2-3x/week.", Tags: "protein fish tuna"},
	{Food: "Broccoli", Summary: "Fiber, vitamin C and sulforaphane; steam to keep nutrients.", Tags: "vegetable fiber greens broccoli"},
	{Food: "Whole-wheat pasta", Summary: "More fiber and protein than refined pasta; pair with vegetables.", Tags: "carbs grain pasta fiber"},
}
