package main

import (
	"fmt"

	"github.com/apaddicto/internal/db"
	"github.com/apaddicto/internal/service"
)

type seedCounts struct {
	Exercises int
	Content   int
	Routines  int
}

type seedReport struct {
	seedCounts
	Skipped seedCounts
}

type demoExercise struct {
	title        string
	description  string
	category     string
	difficulty   string
	minutes      int
	instructions string
	benefits     string
	tags         []string
}

type demoContent struct {
	title      string
	category   string
	kind       string
	difficulty string
	body       string
}

type demoRoutine struct {
	title       string
	description string
	category    string
	minutes     int
	steps       []string
	isDefault   bool
}

var demoExercises = []demoExercise{
	{
		title:        "Respiration carrée",
		description:  "Inspirer, retenir, expirer et retenir sur quatre temps chacun.",
		category:     "breathing",
		difficulty:   "beginner",
		minutes:      5,
		instructions: "Assis confortablement, inspirez 4 secondes, retenez 4 secondes, expirez 4 secondes, retenez 4 secondes. Répétez.",
		benefits:     "Réduit rapidement l'activation physiologique liée au craving.",
		tags:         []string{"respiration", "urgence"},
	},
	{
		title:        "Squats",
		description:  "Flexions des jambes au poids du corps.",
		category:     "strength",
		difficulty:   "beginner",
		minutes:      10,
		instructions: "Pieds largeur d'épaules, descendez en gardant le dos droit puis remontez. 3 séries de 12.",
		benefits:     "Mobilise de grands groupes musculaires et détourne l'attention du craving.",
		tags:         []string{"renforcement"},
	},
	{
		title:        "Marche rapide",
		description:  "Marche soutenue en extérieur ou sur place.",
		category:     "cardio",
		difficulty:   "beginner",
		minutes:      15,
		instructions: "Marchez à un rythme qui accélère la respiration sans empêcher de parler.",
		benefits:     "Libère des endorphines et diminue l'intensité du craving.",
		tags:         []string{"cardio", "extérieur"},
	},
	{
		title:        "Scan corporel",
		description:  "Attention portée successivement à chaque partie du corps.",
		category:     "mindfulness",
		difficulty:   "intermediate",
		minutes:      12,
		instructions: "Allongé, portez l'attention des pieds vers la tête en notant les sensations sans les juger.",
		benefits:     "Aide à observer le craving comme une sensation passagère.",
		tags:         []string{"pleine conscience"},
	},
	{
		title:        "Étirements du dos",
		description:  "Série d'étirements doux de la colonne.",
		category:     "flexibility",
		difficulty:   "beginner",
		minutes:      8,
		instructions: "Enchaînez posture de l'enfant, chat-vache et torsion assise, 30 secondes chacune.",
		benefits:     "Relâche les tensions musculaires associées au stress.",
		tags:         []string{"étirement", "relaxation"},
	},
}

var demoContents = []demoContent{
	{
		title:      "Comprendre le craving",
		category:   "addiction",
		kind:       "article",
		difficulty: "beginner",
		body: "## Qu'est-ce que le craving ?\n\nLe craving est une envie intense et soudaine de consommer. " +
			"Il monte, atteint un pic puis **redescend**, généralement en moins de 20 minutes.\n\n" +
			"### Ce qui aide\n\n- bouger\n- respirer lentement\n- appeler une personne de confiance\n",
	},
	{
		title:      "L'activité physique contre l'envie",
		category:   "exercise",
		kind:       "article",
		difficulty: "beginner",
		body: "## Pourquoi bouger ?\n\nL'exercice modifie la chimie du cerveau et réduit l'intensité du craving. " +
			"Même 10 minutes de marche rapide suffisent à produire un effet mesurable.\n",
	},
	{
		title:      "Les pensées automatiques",
		category:   "psychology",
		kind:       "article",
		difficulty: "intermediate",
		body: "## La colonne de Beck\n\nNotez la situation, la pensée automatique, l'émotion et son intensité, " +
			"puis formulez une réponse rationnelle. Réévaluez ensuite l'intensité de l'émotion.\n",
	},
}

var demoRoutines = []demoRoutine{
	{
		title:       "Routine d'urgence 5 minutes",
		description: "À utiliser dès que l'envie devient forte.",
		category:    "general",
		minutes:     5,
		steps: []string{
			"Respiration carrée pendant 1 minute",
			"20 squats ou montées de genoux",
			"Boire un grand verre d'eau",
			"Noter l'intensité du craving de 0 à 10",
		},
		isDefault: true,
	},
	{
		title:       "Ancrage sensoriel",
		description: "Technique 5-4-3-2-1 pour revenir au moment présent.",
		category:    "mindfulness",
		minutes:     3,
		steps: []string{
			"Nommer 5 choses que vous voyez",
			"Nommer 4 choses que vous pouvez toucher",
			"Nommer 3 sons que vous entendez",
			"Nommer 2 odeurs",
			"Nommer 1 goût",
		},
	},
}

// seedDemoData 写入演示数据，已存在的同名记录会被跳过
func seedDemoData() (*seedReport, error) {
	report := &seedReport{}

	exercises := service.NewExerciseService(db.DB)
	for _, item := range demoExercises {
		exists, err := titleExists(&db.Exercise{}, item.title)
		if err != nil {
			return nil, err
		}
		if exists {
			report.Skipped.Exercises++
			continue
		}
		active := true
		if _, err := exercises.Create(service.ExerciseInput{
			Title:        &item.title,
			Description:  &item.description,
			Category:     &item.category,
			Difficulty:   &item.difficulty,
			Duration:     &item.minutes,
			Instructions: &item.instructions,
			Benefits:     &item.benefits,
			Tags:         item.tags,
			IsActive:     &active,
		}); err != nil {
			return nil, fmt.Errorf("seed exercise %q: %w", item.title, err)
		}
		report.Exercises++
	}

	contents := service.NewContentService(db.DB)
	for _, item := range demoContents {
		exists, err := titleExists(&db.PsychoEducationContent{}, item.title)
		if err != nil {
			return nil, err
		}
		if exists {
			report.Skipped.Content++
			continue
		}
		published := true
		if _, err := contents.Create(service.ContentInput{
			Title:       &item.title,
			Category:    &item.category,
			Type:        &item.kind,
			Difficulty:  &item.difficulty,
			Content:     &item.body,
			IsPublished: &published,
		}); err != nil {
			return nil, fmt.Errorf("seed content %q: %w", item.title, err)
		}
		report.Content++
	}

	routines := service.NewRoutineService(db.DB)
	for _, item := range demoRoutines {
		exists, err := titleExists(&db.EmergencyRoutine{}, item.title)
		if err != nil {
			return nil, err
		}
		if exists {
			report.Skipped.Routines++
			continue
		}
		active := true
		isDefault := item.isDefault
		if _, err := routines.Create(service.RoutineInput{
			Title:       &item.title,
			Description: &item.description,
			Category:    &item.category,
			Steps:       item.steps,
			Duration:    &item.minutes,
			IsActive:    &active,
			IsDefault:   &isDefault,
		}); err != nil {
			return nil, fmt.Errorf("seed routine %q: %w", item.title, err)
		}
		report.Routines++
	}

	return report, nil
}

func titleExists(model interface{}, title string) (bool, error) {
	var count int64
	if err := db.DB.Model(model).Where("title = ?", title).Count(&count).Error; err != nil {
		return false, fmt.Errorf("check %q: %w", title, err)
	}
	return count > 0, nil
}
