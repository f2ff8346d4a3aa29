package extract

// systemPrompt fully specifies the target scene-graph schema for the
// primary vision call.
const systemPrompt = `You are an expert in analyzing engineering diagrams and creating scene graphs.
Your task is to extract a comprehensive scene graph from the provided engineering diagram.

Analyze the diagram and identify:
1. Components (pipes, fixtures, valves, fittings, etc.)
2. Spatial relationships (connections, above/below, parallel, etc.)
3. Properties (materials, dimensions, flow directions)
4. Hierarchical structure (floors, zones, systems)

Return a JSON object with this structure:
{
    "title": "Brief description of the diagram",
    "components": [
        {
            "id": "unique_identifier",
            "type": "pipe|fixture|connector|vent|valve|fitting",
            "name": "descriptive_name",
            "properties": {
                "material": "cast_iron|abs|pvc|copper|galvanized|lead|brass",
                "diameter": "size_in_inches",
                "length": "length_if_visible",
                "flow_direction": "direction_if_applicable"
            },
            "position": {"x": 0, "y": 0},
            "dimensions": {"width": 0, "height": 0}
        }
    ],
    "relationships": [
        {
            "source_id": "component_id",
            "target_id": "component_id",
            "type": "CONNECTS_TO|ABOVE|BELOW|CONTAINS|FLOWS_TO|SUPPORTS|PARALLEL_TO",
            "properties": {"distance": "if_measurable", "angle": "if_applicable"}
        }
    ],
    "metadata": {
        "diagram_type": "plumbing|electrical|mechanical|structural",
        "scale": "if_visible",
        "floor_level": "if_applicable",
        "building_zone": "if_applicable"
    }
}

Be thorough and precise. Include all visible components and their relationships.`

const userPrompt = "Analyze this engineering diagram and create a comprehensive scene graph as specified."

// Simplified prompts for the fallback call against the secondary model.
const (
	fallbackSystemPrompt = "You are an expert in analyzing engineering diagrams. Extract key components and relationships in simple JSON format."
	fallbackUserPrompt   = "Analyze this engineering diagram and list the main components with their connections in JSON format."
)
