package service

import (
	"github.com/google/uuid"
	"github.com/stemsi/cq-evaluator/internal/model"
)

// GroupByQuestion partitions uploaded images by question. Questions keep the
// order in which they were first seen and images keep their upload order.
func GroupByQuestion(images []model.SubmittedImage) []model.QuestionAnswer {
	index := make(map[uuid.UUID]int)
	groups := make([]model.QuestionAnswer, 0)

	for _, img := range images {
		i, ok := index[img.QuestionID]
		if !ok {
			i = len(groups)
			index[img.QuestionID] = i
			groups = append(groups, model.QuestionAnswer{QuestionID: img.QuestionID})
		}
		groups[i].Images = append(groups[i].Images, img)
	}
	return groups
}
