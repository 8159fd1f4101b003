package preference

import (
	"sort"
	"strings"

	"memoryd/internal/models"
)

var categoryKeywords = map[string]models.ContentCategory{
	"photo": models.CategoryPhotos, "photos": models.CategoryPhotos, "pic": models.CategoryPhotos,
	"pics": models.CategoryPhotos, "picture": models.CategoryPhotos, "pictures": models.CategoryPhotos,
	"selfie": models.CategoryPhotos, "selfies": models.CategoryPhotos,
	"video": models.CategoryVideos, "videos": models.CategoryVideos, "vid": models.CategoryVideos,
	"vids": models.CategoryVideos, "clip": models.CategoryVideos, "clips": models.CategoryVideos,
	"custom": models.CategoryCustomContent, "personalized": models.CategoryCustomContent,
	"voice": models.CategoryVoiceNotes, "audio": models.CategoryVoiceNotes,
	"live": models.CategoryLiveStreams, "stream": models.CategoryLiveStreams, "livestream": models.CategoryLiveStreams,
	"bundle": models.CategoryBundles, "bundles": models.CategoryBundles, "pack": models.CategoryBundles,
	"bts": models.CategoryBehindTheScenes, "backstage": models.CategoryBehindTheScenes,
	"cosplay": models.CategoryCosplay, "costume": models.CategoryCosplay,
	"gym": models.CategoryFitness, "workout": models.CategoryFitness, "fitness": models.CategoryFitness, "yoga": models.CategoryFitness,
	"lingerie": models.CategoryLingerie,
	"outdoor": models.CategoryOutdoor, "outdoors": models.CategoryOutdoor, "beach": models.CategoryOutdoor, "hiking": models.CategoryOutdoor,
	"gaming": models.CategoryGaming, "game": models.CategoryGaming, "games": models.CategoryGaming,
	"music": models.CategoryMusic, "song": models.CategoryMusic, "singing": models.CategoryMusic,
	"travel": models.CategoryTravel, "trip": models.CategoryTravel, "vacation": models.CategoryTravel,
	"food": models.CategoryFood, "cooking": models.CategoryFood, "recipe": models.CategoryFood,
	"fashion": models.CategoryFashion, "outfit": models.CategoryFashion, "outfits": models.CategoryFashion, "dress": models.CategoryFashion,
	"art": models.CategoryArt, "drawing": models.CategoryArt, "painting": models.CategoryArt,
	"pet": models.CategoryPets, "pets": models.CategoryPets, "dog": models.CategoryPets, "cat": models.CategoryPets,
	"couple": models.CategoryCouples, "couples": models.CategoryCouples,
	"story": models.CategoryStories, "stories": models.CategoryStories,
	"poll": models.CategoryPolls, "polls": models.CategoryPolls, "vote": models.CategoryPolls,
	"merch": models.CategoryMerch, "hoodie": models.CategoryMerch, "signed": models.CategoryMerch,
}

var phraseKeywords = map[string]models.ContentCategory{
	"voice note":        models.CategoryVoiceNotes,
	"behind the scenes": models.CategoryBehindTheScenes,
	"live stream":       models.CategoryLiveStreams,
	"custom content":    models.CategoryCustomContent,
	"working out":       models.CategoryFitness,
}

// ExtractCategories finds the content categories a fan message mentions,
// from explicit topics first and then from keywords in the text.
func ExtractCategories(content string, topics []string) []models.ContentCategory {
	found := map[models.ContentCategory]struct{}{}
	for _, t := range topics {
		c := models.ContentCategory(strings.ReplaceAll(strings.ToLower(t), " ", "_"))
		if c.Valid() {
			found[c] = struct{}{}
		} else if mapped, ok := categoryKeywords[normalizeWord(t)]; ok {
			found[mapped] = struct{}{}
		}
	}

	lower := strings.ToLower(content)
	for phrase, c := range phraseKeywords {
		if strings.Contains(lower, phrase) {
			found[c] = struct{}{}
		}
	}
	for _, w := range strings.Fields(lower) {
		if c, ok := categoryKeywords[normalizeWord(w)]; ok {
			found[c] = struct{}{}
		}
	}

	out := make([]models.ContentCategory, 0, len(found))
	for c := range found {
		out = append(out, c)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}
